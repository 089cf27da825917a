package auth

// SetArgon2Params changes the cost of password hashes written from now on.
// Stored hashes with other parameters are upgraded on the owner's next
// successful login. Call it before serving requests.
func (a *API) SetArgon2Params(p Argon2Params) error {
	return a.hasher.SetArgon2Params(p)
}
