package integration

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestLoginSetsSessionCookies(t *testing.T) {
	s := newStack(t)
	client := newClient(t)

	login(t, client, s.baseURL, userEmail, userPassword)

	if cookieValue(t, client, s.baseURL, "access_token") == "" {
		t.Fatal("access_token cookie missing")
	}
	if cookieValue(t, client, s.baseURL, "refresh_token") == "" {
		t.Fatal("refresh_token cookie missing")
	}

	resp, env := doJSON(t, client, http.MethodGet, s.baseURL+"/api/v1/me", nil, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("me returned %d", resp.StatusCode)
	}
	var me struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := json.Unmarshal(env.Data, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Email != userEmail || me.Role != "user" {
		t.Fatalf("unexpected identity %+v", me)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	s := newStack(t)
	client := newClient(t)

	resp, env := doJSON(t, client, http.MethodPost, s.baseURL+"/api/v1/auth/login",
		map[string]string{"email": userEmail, "password": "not-the-password"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if env.Success {
		t.Fatal("expected failure envelope")
	}
}

func TestRefreshRotatesTheToken(t *testing.T) {
	s := newStack(t)
	client := newClient(t)

	csrf := login(t, client, s.baseURL, userEmail, userPassword)
	oldRefresh := cookieValue(t, client, s.baseURL, "refresh_token")

	resp, env := doJSON(t, client, http.MethodPost, s.baseURL+"/api/v1/auth/refresh", nil, func(r *http.Request) {
		r.Header.Set("X-CSRF-Token", csrf)
	})
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("refresh returned %d", resp.StatusCode)
	}

	newRefresh := cookieValue(t, client, s.baseURL, "refresh_token")
	if newRefresh == "" || newRefresh == oldRefresh {
		t.Fatal("refresh should rotate the refresh token")
	}

	// The spent token is single use. Present it from a bare client so the
	// jar cannot shadow it with the rotated one.
	replay := &http.Client{Timeout: client.Timeout}
	resp, _ = doJSON(t, replay, http.MethodPost, s.baseURL+"/api/v1/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "refresh_token", Value: oldRefresh})
		r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "replay"})
		r.Header.Set("X-CSRF-Token", "replay")
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 replaying spent refresh token, got %d", resp.StatusCode)
	}
}

func TestRefreshRequiresCSRFToken(t *testing.T) {
	s := newStack(t)
	client := newClient(t)

	login(t, client, s.baseURL, userEmail, userPassword)

	resp, _ := doJSON(t, client, http.MethodPost, s.baseURL+"/api/v1/auth/refresh", nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf header, got %d", resp.StatusCode)
	}
}

func TestLogoutEndsTheSession(t *testing.T) {
	s := newStack(t)
	client := newClient(t)

	csrf := login(t, client, s.baseURL, userEmail, userPassword)

	resp, _ := doJSON(t, client, http.MethodPost, s.baseURL+"/api/v1/auth/logout", nil, func(r *http.Request) {
		r.Header.Set("X-CSRF-Token", csrf)
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout returned %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, client, http.MethodGet, s.baseURL+"/api/v1/me", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}
}
