package api

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ID tolerates backend identifiers that arrive as JSON numbers in some
// responses and strings in others.
type ID string

func (v *ID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*v = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*v = ID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = ID(n.String())
	return nil
}

func (v ID) String() string { return string(v) }

// FormatID renders any identifier value a loosely-typed payload may carry.
func FormatID(val any) string {
	switch t := val.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		// Composite values are never identifiers.
		return ""
	}
}

// SignInResponse is the raw sign-in payload. Beyond the token, every field
// is optional and some deployments omit all of them.
type SignInResponse struct {
	AccessToken string   `json:"access_token"`
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	UserID      ID       `json:"user_id"`
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	Roles       []string `json:"roles"`
	UserRole    string   `json:"user_role"`
}

// SignInError is the one user-visible failure in the whole discovery stack.
type SignInError struct {
	Message string
}

func (e *SignInError) Error() string {
	return "login failed: " + e.Message
}

// SignIn authenticates with the backend. Any failure (transport, non-2xx,
// or a 2xx without a token) is a SignInError; there is no fallback for a
// rejected sign-in.
func (c *Client) SignIn(ctx context.Context, usernameOrEmail, password string) (*SignInResponse, error) {
	body := map[string]string{
		"usernameOrEmail": usernameOrEmail,
		"password":        password,
	}

	var res SignInResponse
	if err := c.PostJSON(ctx, "/auth/sign-in", body, &res); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Body != "" {
			return nil, &SignInError{Message: se.Body}
		}
		return nil, &SignInError{Message: err.Error()}
	}
	if res.AccessToken == "" && res.Status != "success" {
		return nil, &SignInError{Message: "invalid response from server"}
	}
	if res.Username == "" {
		res.Username = usernameOrEmail
	}
	return &res, nil
}
