package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
	PatientIDKey contextKey = "patient_id"
	DoctorIDKey  contextKey = "doctor_id"
)

const (
	RolePatient    = "patient"
	RoleDoctor     = "doctor"
	RoleSuperadmin = "superadmin"
)

// Claims carries the clinic identity. PatientID and DoctorID link the
// subject to the patient or doctor record it acts as.
type Claims struct {
	jwt.RegisteredClaims
	Roles     []string `json:"roles"`
	PatientID string   `json:"patient_id,omitempty"`
	DoctorID  string   `json:"doctor_id,omitempty"`
}

type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	keyFunc := func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, keyFunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.SetRequest(c.Request().WithContext(withIdentity(c.Request().Context(), claims)))
			return next(c)
		}
	}
}

// DevAuthMiddleware lets unauthenticated requests through as a superadmin.
// X-Dev-Roles (comma separated), X-Dev-Patient-ID and X-Dev-Doctor-ID
// override the injected identity. Requests that do carry a token are
// validated with cfg.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	jwtMW := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withToken := jwtMW(next)
		return func(c echo.Context) error {
			req := c.Request()
			if req.Header.Get("Authorization") != "" {
				return withToken(c)
			}
			claims := &Claims{
				Roles:     []string{RoleSuperadmin},
				PatientID: req.Header.Get("X-Dev-Patient-ID"),
				DoctorID:  req.Header.Get("X-Dev-Doctor-ID"),
			}
			claims.Subject = "dev-user"
			if roles := req.Header.Get("X-Dev-Roles"); roles != "" {
				claims.Roles = nil
				for _, r := range strings.Split(roles, ",") {
					if r = strings.TrimSpace(r); r != "" {
						claims.Roles = append(claims.Roles, r)
					}
				}
			}
			c.SetRequest(req.WithContext(withIdentity(req.Context(), claims)))
			return next(c)
		}
	}
}

func withIdentity(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
	ctx = context.WithValue(ctx, UserRolesKey, claims.Roles)
	ctx = context.WithValue(ctx, PatientIDKey, claims.PatientID)
	ctx = context.WithValue(ctx, DoctorIDKey, claims.DoctorID)
	return ctx
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

// PatientIDFromContext returns the patient the caller acts as, if any.
func PatientIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	return uuidValue(ctx, PatientIDKey)
}

// DoctorIDFromContext returns the doctor the caller acts as, if any.
func DoctorIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	return uuidValue(ctx, DoctorIDKey)
}

func uuidValue(ctx context.Context, key contextKey) (uuid.UUID, bool) {
	s, _ := ctx.Value(key).(string)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
