package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/treenet/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestBearerToken(t *testing.T) {
	testlog.Start(t)
	token, err := BearerToken("Bearer s3cret")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", token)

	token, err = BearerToken("  bearer   spaced ")
	require.NoError(t, err)
	assert.Equal(t, "spaced", token)

	for _, bad := range []string{"", "Bearer", "Bearer   ", "Basic abc", "s3cret"} {
		_, err := BearerToken(bad)
		assert.ErrorIs(t, err, ErrUnauthorized, "header %q", bad)
	}
}

func TestRequireGuardsHandler(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/commands", Require(StaticToken{Token: "s3cret"}), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	do := func(header string) int {
		req := httptest.NewRequest(http.MethodPost, "/commands", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}
	assert.Equal(t, http.StatusUnauthorized, do(""))
	assert.Equal(t, http.StatusUnauthorized, do("Bearer nope"))
	assert.Equal(t, http.StatusAccepted, do("Bearer s3cret"))
}
