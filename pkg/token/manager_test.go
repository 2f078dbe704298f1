package token_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/LukeDurrant/teslajson/pkg/protocol"
	"github.com/LukeDurrant/teslajson/pkg/token"
)

const oauthURL = "https://owner-api.example.com/oauth/token"

var _ = Describe("Manager", func() {
	var cfg token.Config

	BeforeEach(func() {
		httpmock.Activate()
		DeferCleanup(httpmock.DeactivateAndReset)
		cfg = token.Config{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			Email:        "owner@example.com",
			Password:     "hunter2",
			URL:          oauthURL,
		}
	})

	// registerGrant records each grant request's form and replies with the given token fields.
	registerGrant := func(grants *[]url.Values, reply map[string]interface{}) {
		var mu sync.Mutex
		httpmock.RegisterResponder(http.MethodPost, oauthURL, func(r *http.Request) (*http.Response, error) {
			Expect(r.ParseForm()).To(Succeed())
			mu.Lock()
			*grants = append(*grants, r.PostForm)
			mu.Unlock()
			return httpmock.NewJsonResponse(http.StatusOK, reply)
		})
	}

	writeTokenFile := func(dir string, t *token.Token) string {
		filename := filepath.Join(dir, "tokens.json")
		Expect(t.ExportToFile(filename)).To(Succeed())
		return filename
	}

	Context("with a still-valid token file", func() {
		It("returns the cached token without network traffic", func() {
			cached := &token.Token{
				AccessToken:  "cached-access",
				RefreshToken: "cached-refresh",
				CreatedAt:    time.Now().Unix(),
				ExpiresIn:    45 * 86400,
			}
			cfg.Filename = writeTokenFile(GinkgoT().TempDir(), cached)

			manager := token.NewManager(cfg)
			accessToken, err := manager.EnsureValid(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(accessToken).To(Equal("cached-access"))
			Expect(httpmock.GetTotalCallCount()).To(BeZero())
		})
	})

	Context("with an expired token file", func() {
		var grants []url.Values
		var filename string

		BeforeEach(func() {
			grants = nil
			stale := &token.Token{
				AccessToken:  "stale-access",
				RefreshToken: "stale-refresh",
				CreatedAt:    time.Now().Add(-60 * 24 * time.Hour).Unix(),
				ExpiresIn:    45 * 86400,
			}
			filename = writeTokenFile(GinkgoT().TempDir(), stale)
			cfg.Filename = filename
			registerGrant(&grants, map[string]interface{}{
				"access_token":  "fresh-access",
				"refresh_token": "fresh-refresh",
				"created_at":    time.Now().Unix(),
				"expires_in":    45 * 86400,
			})
		})

		It("performs exactly one refresh grant", func() {
			manager := token.NewManager(cfg)
			accessToken, err := manager.EnsureValid(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(accessToken).To(Equal("fresh-access"))
			Expect(grants).To(HaveLen(1))
			Expect(grants[0].Get("grant_type")).To(Equal("refresh_token"))
			Expect(grants[0].Get("client_id")).To(Equal("client-id"))
			Expect(grants[0].Get("client_secret")).To(Equal("client-secret"))
			Expect(grants[0].Get("refresh_token")).To(Equal("stale-refresh"))
			Expect(grants[0].Has("password")).To(BeFalse())
		})

		It("rewrites the token file in full", func() {
			manager := token.NewManager(cfg)
			_, err := manager.EnsureValid(context.Background())
			Expect(err).NotTo(HaveOccurred())
			reloaded, err := token.ImportFromFile(filename)
			Expect(err).NotTo(HaveOccurred())
			Expect(reloaded.AccessToken).To(Equal("fresh-access"))
			Expect(reloaded.RefreshToken).To(Equal("fresh-refresh"))
		})

		It("serializes concurrent callers into a single refresh", func() {
			manager := token.NewManager(cfg)
			var wg sync.WaitGroup
			results := make([]string, 10)
			errs := make([]error, 10)
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = manager.EnsureValid(context.Background())
				}(i)
			}
			wg.Wait()
			for i := 0; i < 10; i++ {
				Expect(errs[i]).NotTo(HaveOccurred())
				Expect(results[i]).To(Equal("fresh-access"))
			}
			Expect(grants).To(HaveLen(1))
		})
	})

	Context("with email and password only", func() {
		var grants []url.Values

		BeforeEach(func() {
			grants = nil
		})

		It("uses the password grant", func() {
			registerGrant(&grants, map[string]interface{}{
				"access_token":  "first-access",
				"refresh_token": "first-refresh",
				"created_at":    time.Now().Unix(),
				"expires_in":    45 * 86400,
			})
			manager := token.NewManager(cfg)
			accessToken, err := manager.EnsureValid(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(accessToken).To(Equal("first-access"))
			Expect(grants).To(HaveLen(1))
			Expect(grants[0].Get("grant_type")).To(Equal("password"))
			Expect(grants[0].Get("email")).To(Equal("owner@example.com"))
			Expect(grants[0].Get("password")).To(Equal("hunter2"))
		})

		It("stamps created_at locally when the server omits it", func() {
			registerGrant(&grants, map[string]interface{}{
				"access_token":  "first-access",
				"refresh_token": "first-refresh",
				"expires_in":    45 * 86400,
			})
			before := time.Now().Unix()
			manager := token.NewManager(cfg)
			_, err := manager.EnsureValid(context.Background())
			Expect(err).NotTo(HaveOccurred())
			held := manager.Token()
			Expect(held).NotTo(BeNil())
			Expect(held.CreatedAt).To(BeNumerically(">=", before))
			Expect(held.CreatedAt).To(BeNumerically("<=", time.Now().Unix()))
		})

		It("prefers the refresh grant once a refresh token is held", func() {
			registerGrant(&grants, map[string]interface{}{
				"access_token": "short-access",
				// A born-expired token: expires_in is far below the safety margin, so the next
				// call must refresh again, this time with the refresh grant.
				"refresh_token": "short-refresh",
				"created_at":    time.Now().Unix(),
				"expires_in":    3600,
			})
			manager := token.NewManager(cfg)
			_, err := manager.EnsureValid(context.Background())
			Expect(err).NotTo(HaveOccurred())
			_, err = manager.EnsureValid(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(grants).To(HaveLen(2))
			Expect(grants[0].Get("grant_type")).To(Equal("password"))
			Expect(grants[1].Get("grant_type")).To(Equal("refresh_token"))
			Expect(grants[1].Get("refresh_token")).To(Equal("short-refresh"))
		})
	})

	Context("with a static access token", func() {
		It("never contacts the OAuth endpoint", func() {
			manager := token.NewManager(token.Config{AccessToken: "static-token", URL: oauthURL})
			for i := 0; i < 3; i++ {
				accessToken, err := manager.EnsureValid(context.Background())
				Expect(err).NotTo(HaveOccurred())
				Expect(accessToken).To(Equal("static-token"))
			}
			Expect(httpmock.GetTotalCallCount()).To(BeZero())
			Expect(manager.Static()).To(BeTrue())
		})
	})

	Context("with no credentials at all", func() {
		It("fails without network traffic", func() {
			manager := token.NewManager(token.Config{URL: oauthURL})
			_, err := manager.EnsureValid(context.Background())
			Expect(err).To(MatchError(protocol.ErrNoCredentials))
			Expect(httpmock.GetTotalCallCount()).To(BeZero())
		})
	})

	Context("when the OAuth endpoint rejects the credentials", func() {
		It("surfaces an AuthError wrapping the HTTP status", func() {
			httpmock.RegisterResponder(http.MethodPost, oauthURL,
				httpmock.NewStringResponder(http.StatusUnauthorized, `{"response":"authorization_required_error"}`))
			manager := token.NewManager(cfg)
			_, err := manager.EnsureValid(context.Background())
			var authErr *protocol.AuthError
			Expect(errors.As(err, &authErr)).To(BeTrue())
			var httpErr *protocol.HttpError
			Expect(errors.As(err, &httpErr)).To(BeTrue())
			Expect(httpErr.Code).To(Equal(http.StatusUnauthorized))
		})
	})

	Context("when the token file cannot be rewritten", func() {
		It("returns a TokenFileError but keeps the fresh token in memory", func() {
			grants := []url.Values{}
			registerGrant(&grants, map[string]interface{}{
				"access_token":  "fresh-access",
				"refresh_token": "fresh-refresh",
				"created_at":    time.Now().Unix(),
				"expires_in":    45 * 86400,
			})
			// A path whose parent is a regular file cannot receive a temp file.
			blocker := writeTokenFile(GinkgoT().TempDir(), &token.Token{AccessToken: "x"})
			cfg.Filename = filepath.Join(blocker, "tokens.json")

			manager := token.NewManager(cfg)
			_, err := manager.EnsureValid(context.Background())
			var tfErr *protocol.TokenFileError
			Expect(errors.As(err, &tfErr)).To(BeTrue())

			// The refresh itself succeeded; the next call runs on the in-memory token.
			accessToken, err := manager.EnsureValid(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(accessToken).To(Equal("fresh-access"))
			Expect(grants).To(HaveLen(1))
		})
	})
})
