package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Brandon689/deskauth/auth"
)

// ----- DTOs -----

type userPublic struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	FullName    *string   `json:"full_name"`
	IsActive    bool      `json:"is_active"`
	IsSuperuser bool      `json:"is_superuser"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toPublic(u auth.User) userPublic {
	p := userPublic{
		ID:          u.ID,
		Email:       u.Email,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
	if u.FullName != "" {
		name := u.FullName
		p.FullName = &name
	}
	return p
}

type usersPublic struct {
	Data  []userPublic `json:"data"`
	Count int          `json:"count"`
}

// loginRequest accepts the OAuth2 password form (username/password) as well
// as a JSON body with email/password.
type loginRequest struct {
	Username string `form:"username" json:"username"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type createUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
	IsActive    *bool  `json:"is_active"`
	IsSuperuser bool   `json:"is_superuser"`
}

type updateMeRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type updateUserRequest struct {
	Email       *string `json:"email"`
	FullName    *string `json:"full_name"`
	Password    *string `json:"password"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser *bool   `json:"is_superuser"`
}

type message struct {
	Message string `json:"message"`
}

// ----- helpers -----

// requestScope returns the session and, when resolved, the current user
// placed in the request context by the auth middlewares.
func requestScope(c echo.Context) (*auth.Session, auth.User, error) {
	ctx := c.Request().Context()
	s, ok := auth.SessionFromContext(ctx)
	if !ok {
		return nil, auth.User{}, errors.New("route registered without session middleware")
	}
	u, _ := auth.FromContext(ctx)
	return s, u, nil
}

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid request body")
	}
	return nil
}

func pathUserID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid user id")
	}
	return id, nil
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid "+name)
	}
	return n, nil
}

// ----- handlers -----

func (s *Server) root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"name":          s.settings.ProjectName,
		"version":       s.settings.Version,
		"auth_required": s.settings.AuthRequired,
	})
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) loginAccessToken(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	email := req.Username
	if email == "" {
		email = req.Email
	}
	if email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "username and password are required")
	}

	sess, _, err := requestScope(c)
	if err != nil {
		return err
	}
	tok, err := s.api.Login(c.Request().Context(), sess, email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusBadRequest, "Incorrect email or password")
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   tok.ExpiresAt,
	})
}

func (s *Server) testToken(c echo.Context) error {
	_, u, err := requestScope(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPublic(u))
}

func (s *Server) signup(c echo.Context) error {
	var req signupRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, _, err := requestScope(c)
	if err != nil {
		return err
	}
	u, err := s.api.Register(c.Request().Context(), sess, auth.NewUser{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPublic(u))
}

func (s *Server) readMe(c echo.Context) error {
	_, u, err := requestScope(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPublic(u))
}

func (s *Server) updateMe(c echo.Context) error {
	var req updateMeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, me, err := requestScope(c)
	if err != nil {
		return err
	}
	u, err := s.api.UpdateMe(c.Request().Context(), sess, me.ID, auth.ProfileUpdate{
		Email:    req.Email,
		FullName: req.FullName,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPublic(u))
}

func (s *Server) updatePasswordMe(c echo.Context) error {
	var req updatePasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, me, err := requestScope(c)
	if err != nil {
		return err
	}
	if err := s.api.ChangePassword(c.Request().Context(), sess, me.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, message{Message: "Password updated successfully"})
}

func (s *Server) readUser(c echo.Context) error {
	id, err := pathUserID(c)
	if err != nil {
		return err
	}
	sess, me, err := requestScope(c)
	if err != nil {
		return err
	}
	if id == me.ID {
		return c.JSON(http.StatusOK, toPublic(me))
	}
	if _, err := auth.RequirePrivileged(me); err != nil {
		return err
	}
	u, err := s.api.GetUser(c.Request().Context(), sess, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPublic(u))
}

func (s *Server) listUsers(c echo.Context) error {
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		return err
	}
	sess, _, err := requestScope(c)
	if err != nil {
		return err
	}
	users, total, err := s.api.ListUsers(c.Request().Context(), sess, skip, limit)
	if err != nil {
		return err
	}
	out := usersPublic{Data: make([]userPublic, len(users)), Count: total}
	for i, u := range users {
		out.Data[i] = toPublic(u)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) createUser(c echo.Context) error {
	var req createUserRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, _, err := requestScope(c)
	if err != nil {
		return err
	}
	u, err := s.api.CreateUser(c.Request().Context(), sess, auth.NewUser{
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		IsActive:    req.IsActive,
		IsSuperuser: req.IsSuperuser,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPublic(u))
}

func (s *Server) updateUser(c echo.Context) error {
	id, err := pathUserID(c)
	if err != nil {
		return err
	}
	var req updateUserRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sess, _, err := requestScope(c)
	if err != nil {
		return err
	}
	u, err := s.api.UpdateUser(c.Request().Context(), sess, id, auth.UserUpdate{
		Email:       req.Email,
		FullName:    req.FullName,
		Password:    req.Password,
		IsActive:    req.IsActive,
		IsSuperuser: req.IsSuperuser,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPublic(u))
}
