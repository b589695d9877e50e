package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/MrEthical07/accounts"
	"github.com/MrEthical07/accounts/middleware"
	"github.com/gorilla/mux"
)

type signupBody struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailBody struct {
	Email string `json:"email"`
}

type resetPasswordBody struct {
	Password string `json:"password"`
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	accessName, refreshName := s.engine.CookieNames()
	tokens := middleware.TokensFromRequest(r, accessName, refreshName)
	s.engine.Logout(r.Context(), tokens, s.cookies(w))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var body signupBody
	if !s.decode(w, r, &body) {
		return
	}
	if !s.check(w, ValidateUsername(body.Username), ValidateEmail(body.Email), ValidatePassword(body.Password)) {
		return
	}

	_, err := s.engine.Signup(r.Context(), accounts.SignupRequest{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
	})
	s.respond(w, r, http.StatusCreated, nil, err)
}

func (s *Server) resendVerification(w http.ResponseWriter, r *http.Request) {
	var body emailBody
	if !s.decode(w, r, &body) || !s.check(w, ValidateEmail(body.Email)) {
		return
	}
	s.respond(w, r, http.StatusCreated, nil, s.engine.ResendVerification(r.Context(), body.Email))
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	err := s.engine.Verify(r.Context(), mux.Vars(r)["token"])
	s.respond(w, r, http.StatusCreated, nil, err)
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var body emailBody
	if !s.decode(w, r, &body) || !s.check(w, ValidateEmail(body.Email)) {
		return
	}
	s.respond(w, r, http.StatusCreated, nil, s.engine.ForgotPassword(r.Context(), body.Email))
}

func (s *Server) checkResetPassword(w http.ResponseWriter, r *http.Request) {
	err := s.engine.CheckResetPassword(r.Context(), mux.Vars(r)["token"])
	s.respond(w, r, http.StatusCreated, nil, err)
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordBody
	if !s.decode(w, r, &body) || !s.check(w, ValidatePassword(body.Password)) {
		return
	}
	err := s.engine.ResetPassword(r.Context(), mux.Vars(r)["token"], body.Password)
	s.respond(w, r, http.StatusCreated, nil, err)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if !s.decode(w, r, &body) {
		return
	}
	var pwErr error
	if body.Password == "" {
		pwErr = invalid("password", "password should not be empty")
	}
	if !s.check(w, ValidateEmail(body.Email), pwErr) {
		return
	}

	user, err := s.engine.Login(r.Context(), body.Email, body.Password, s.cookies(w))
	s.respond(w, r, http.StatusOK, user, err)
}

func (s *Server) user(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromRequest(r)
	if !ok {
		middleware.WriteError(w, accounts.ErrUnauthorized)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, u.Public())
}

func (s *Server) cookies(w http.ResponseWriter) accounts.CookieWriter {
	return middleware.NewHTTPCookies(w, s.opts.Cookies)
}

// respond writes v with status, or the mapped error. A nil v writes only
// the status line.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		if middleware.StatusFor(err) == http.StatusInternalServerError {
			s.log.Error(r.Context(), "request failed", "route", r.URL.Path, "error", err)
		}
		middleware.WriteError(w, err)
		return
	}
	if v == nil {
		w.WriteHeader(status)
		return
	}
	middleware.WriteJSON(w, status, v)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)).Decode(dst)
	if err == nil {
		return true
	}
	msg := "Invalid request body"
	if errors.Is(err, io.EOF) {
		msg = "Request body is required"
	}
	middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{StatusCode: http.StatusBadRequest, Message: msg})
	return false
}

// check writes the first validation failure, if any.
func (s *Server) check(w http.ResponseWriter, errs ...error) bool {
	for _, err := range errs {
		if err != nil {
			middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{StatusCode: http.StatusBadRequest, Message: err.Error()})
			return false
		}
	}
	return true
}
