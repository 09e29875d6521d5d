package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TECXBOY/SnapMe/internal/auth"
	"github.com/TECXBOY/SnapMe/internal/profile"
)

func TestVerifier_Verify(t *testing.T) {
	v := auth.NewVerifier("s3cret", "snapme")
	userID := uuid.New()

	type testCase struct {
		name    string
		token   func(t *testing.T) string
		wantErr bool
	}

	tests := []testCase{
		{
			name: "Valid",
			token: func(t *testing.T) string {
				tok, err := v.Issue(auth.Session{UserID: userID, Phone: "+23276123456", Role: profile.RoleCustomer}, time.Hour)
				require.NoError(t, err)
				return tok
			},
		},
		{
			name: "Expired",
			token: func(t *testing.T) string {
				tok, err := v.Issue(auth.Session{UserID: userID, Role: profile.RoleCustomer}, -time.Minute)
				require.NoError(t, err)
				return tok
			},
			wantErr: true,
		},
		{
			name: "Other Secret",
			token: func(t *testing.T) string {
				tok, err := auth.NewVerifier("other", "snapme").Issue(auth.Session{UserID: userID, Role: profile.RoleCustomer}, time.Hour)
				require.NoError(t, err)
				return tok
			},
			wantErr: true,
		},
		{
			name: "Other Issuer",
			token: func(t *testing.T) string {
				tok, err := auth.NewVerifier("s3cret", "elsewhere").Issue(auth.Session{UserID: userID, Role: profile.RoleCustomer}, time.Hour)
				require.NoError(t, err)
				return tok
			},
			wantErr: true,
		},
		{
			name: "Unknown Role",
			token: func(t *testing.T) string {
				tok, err := v.Issue(auth.Session{UserID: userID, Role: "root"}, time.Hour)
				require.NoError(t, err)
				return tok
			},
			wantErr: true,
		},
		{
			name: "Unsigned",
			token: func(t *testing.T) string {
				tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": userID.String()}).
					SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return tok
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := v.Verify(tt.token(t))

			if tt.wantErr {
				assert.ErrorIs(t, err, auth.ErrInvalidToken)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, userID, s.UserID)
			assert.Equal(t, profile.RoleCustomer, s.Role)
			assert.Equal(t, "+23276123456", s.Phone)
		})
	}
}

func TestMiddleware(t *testing.T) {
	v := auth.NewVerifier("s3cret", "")
	adminID := uuid.New()

	admin, err := v.Issue(auth.Session{UserID: adminID, Role: profile.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	customer, err := v.Issue(auth.Session{UserID: uuid.New(), Role: profile.RoleCustomer}, time.Hour)
	require.NoError(t, err)

	var seen *auth.Session

	handler := auth.Middleware(v)(auth.RequireRole(profile.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.SessionFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	type testCase struct {
		name   string
		header string
		want   int
	}

	tests := []testCase{
		{name: "Admin", header: "Bearer " + admin, want: http.StatusNoContent},
		{name: "Wrong Role", header: "Bearer " + customer, want: http.StatusForbidden},
		{name: "Missing", want: http.StatusUnauthorized},
		{name: "Garbage", header: "Bearer nope", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}

	require.NotNil(t, seen)
	assert.Equal(t, adminID, seen.UserID)
}
