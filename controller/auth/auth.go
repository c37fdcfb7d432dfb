// Package auth guards mutating API calls behind a cookie session.
package auth

import (
	"crypto/rand"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionName = "guardian"
	userKey     = "user"
)

// Config is the single operator credential. An empty User disables auth.
type Config struct {
	User         string `yaml:"user"`
	PasswordHash string `yaml:"password_hash"`
	// Password is hashed at startup when PasswordHash is empty.
	Password   string `yaml:"password"`
	SessionKey string `yaml:"session_key"`
}

type Credentials struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type Auth struct {
	user  string
	hash  []byte
	store *sessions.CookieStore
}

func New(cfg Config) (*Auth, error) {
	a := &Auth{user: cfg.User}
	if cfg.User == "" {
		return a, nil
	}
	switch {
	case cfg.PasswordHash != "":
		a.hash = []byte(cfg.PasswordHash)
		if _, err := bcrypt.Cost(a.hash); err != nil {
			return nil, err
		}
	case cfg.Password != "":
		h, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		a.hash = h
	default:
		log.Println("auth: user", cfg.User, "has no password; authentication disabled")
		a.user = ""
		return a, nil
	}
	key := []byte(cfg.SessionKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}
	a.store = sessions.NewCookieStore(key)
	a.store.Options = &sessions.Options{Path: "/", MaxAge: 86400, HttpOnly: true, SameSite: http.SameSiteStrictMode}
	return a, nil
}

func (a *Auth) Enabled() bool { return a.user != "" }

// Protect rejects requests without a signed-in session.
func (a *Auth) Protect(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			fn(w, r)
			return
		}
		session, err := a.store.Get(r, sessionName)
		if err != nil || session.Values[userKey] != a.user {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		fn(w, r)
	}
}

func (a *Auth) SignIn(w http.ResponseWriter, r *http.Request) {
	if !a.Enabled() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	var c Credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if c.User != a.user || bcrypt.CompareHashAndPassword(a.hash, []byte(c.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	session, _ := a.store.Get(r, sessionName)
	session.Values[userKey] = c.User
	if err := session.Save(r, w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Auth) SignOut(w http.ResponseWriter, r *http.Request) {
	if !a.Enabled() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	session, _ := a.store.Get(r, sessionName)
	session.Options.MaxAge = -1
	delete(session.Values, userKey)
	if err := session.Save(r, w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Auth) LoadAPI(r *mux.Router) {
	r.HandleFunc("/api/login", a.SignIn).Methods("POST")
	r.HandleFunc("/api/logout", a.SignOut).Methods("GET")
}
