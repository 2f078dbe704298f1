package account_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/LukeDurrant/teslajson/pkg/account"
	"github.com/LukeDurrant/teslajson/pkg/protocol"
	"github.com/LukeDurrant/teslajson/pkg/token"
)

const (
	baseURL     = "https://owner-api.example.com"
	oauthURL    = baseURL + "/oauth/token"
	vehiclesURL = baseURL + "/api/1/vehicles"
)

var _ = Describe("Account", func() {
	var opts account.Options

	BeforeEach(func() {
		httpmock.Activate()
		DeferCleanup(httpmock.DeactivateAndReset)
		opts = account.Options{
			Email:    "owner@example.com",
			Password: "hunter2",
			Config: account.Config{
				ClientID:     "client-id",
				ClientSecret: "client-secret",
				BaseURL:      baseURL,
				APIPath:      "/api/1/",
			},
		}
	})

	registerOAuth := func() {
		httpmock.RegisterResponder(http.MethodPost, oauthURL, func(r *http.Request) (*http.Response, error) {
			Expect(r.ParseForm()).To(Succeed())
			Expect(r.PostForm.Get("client_id")).To(Equal("client-id"))
			Expect(r.Header.Get("Authorization")).To(BeEmpty())
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
				"access_token":  "granted-access",
				"refresh_token": "granted-refresh",
				"created_at":    time.Now().Unix(),
				"expires_in":    45 * 86400,
			})
		})
	}

	registerVehicles := func(records ...map[string]interface{}) {
		list := make([]interface{}, 0, len(records))
		for _, record := range records {
			list = append(list, record)
		}
		httpmock.RegisterResponder(http.MethodGet, vehiclesURL, func(r *http.Request) (*http.Response, error) {
			Expect(r.Header.Get("Authorization")).To(HavePrefix("Bearer "))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{"response": list})
		})
	}

	Describe("New", func() {
		It("logs in and populates the vehicle list", func() {
			registerOAuth()
			registerVehicles(
				map[string]interface{}{"id": 42, "vin": "5YJ3E1EA7KF000000", "display_name": "Millennium Falcon", "state": "online"},
				map[string]interface{}{"id": 43, "vin": "5YJ3E1EA7KF000001", "display_name": "Serenity", "state": "asleep"},
			)

			acct, err := account.New(context.Background(), opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(acct.Vehicles).To(HaveLen(2))
			Expect(acct.Vehicles[0].ID()).To(Equal(int64(42)))
			Expect(acct.Vehicles[0].VIN()).To(Equal("5YJ3E1EA7KF000000"))
			Expect(acct.Vehicles[1].DisplayName()).To(Equal("Serenity"))
			Expect(httpmock.GetCallCountInfo()["POST "+oauthURL]).To(Equal(1))
		})

		It("accepts an empty vehicle list", func() {
			registerOAuth()
			registerVehicles()
			acct, err := account.New(context.Background(), opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(acct.Vehicles).To(BeEmpty())
		})

		It("fails when the OAuth endpoint rejects the credentials", func() {
			httpmock.RegisterResponder(http.MethodPost, oauthURL,
				httpmock.NewStringResponder(http.StatusUnauthorized, `{"response":"authorization_required_error"}`))
			_, err := account.New(context.Background(), opts)
			var authErr *protocol.AuthError
			Expect(errors.As(err, &authErr)).To(BeTrue())
			Expect(httpmock.GetCallCountInfo()["GET "+vehiclesURL]).To(BeZero())
		})

		It("fails when the vehicle list cannot be fetched", func() {
			registerOAuth()
			httpmock.RegisterResponder(http.MethodGet, vehiclesURL,
				httpmock.NewStringResponder(http.StatusServiceUnavailable, `{"error":"try again"}`))
			_, err := account.New(context.Background(), opts)
			Expect(err).To(HaveOccurred())
		})

		It("constructs despite a missing token file", func() {
			registerOAuth()
			registerVehicles(map[string]interface{}{"id": 42, "vin": "X"})
			opts.TokenFilename = filepath.Join(GinkgoT().TempDir(), "absent.json")

			acct, err := account.New(context.Background(), opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(acct.Vehicles).To(HaveLen(1))

			// The password grant's reply must have been persisted for the next session.
			saved, err := token.ImportFromFile(opts.TokenFilename)
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.AccessToken).To(Equal("granted-access"))
		})

		It("never calls the OAuth endpoint when given a static access token", func() {
			registerVehicles(map[string]interface{}{"id": 42, "vin": "X"})
			opts.Email = ""
			opts.Password = ""
			opts.AccessToken = "static-token"

			acct, err := account.New(context.Background(), opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(acct.Vehicles).To(HaveLen(1))
			Expect(httpmock.GetCallCountInfo()["POST "+oauthURL]).To(BeZero())
			Expect(acct.Token()).To(BeNil())
		})

		It("resumes from a seed token without re-authenticating", func() {
			registerVehicles(map[string]interface{}{"id": 42, "vin": "X"})
			opts.Email = ""
			opts.Password = ""
			opts.Token = &token.Token{
				AccessToken:  "seeded-access",
				RefreshToken: "seeded-refresh",
				CreatedAt:    time.Now().Unix(),
				ExpiresIn:    45 * 86400,
			}

			acct, err := account.New(context.Background(), opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(httpmock.GetCallCountInfo()["POST "+oauthURL]).To(BeZero())
			Expect(acct.Token().AccessToken).To(Equal("seeded-access"))
		})

		It("rejects an unparsable proxy URL", func() {
			opts.ProxyURL = "://not-a-url"
			_, err := account.New(context.Background(), opts)
			var cfgErr *protocol.ConfigError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
			Expect(httpmock.GetTotalCallCount()).To(BeZero())
		})
	})

	Describe("request dispatch", func() {
		var acct *account.Account

		BeforeEach(func() {
			registerOAuth()
			registerVehicles(map[string]interface{}{"id": 42, "vin": "5YJ3E1EA7KF000000"})
			var err error
			acct, err = account.New(context.Background(), opts)
			Expect(err).NotTo(HaveOccurred())
		})

		It("sends GET requests with the bearer token and user agent", func() {
			httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/1/vehicles/42/data_request/charge_state",
				func(r *http.Request) (*http.Response, error) {
					Expect(r.Header.Get("Authorization")).To(Equal("Bearer granted-access"))
					Expect(r.Header.Get("User-Agent")).To(ContainSubstring("teslajson/"))
					return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
						"response": map[string]interface{}{"battery_level": 72},
					})
				})

			state, err := acct.Vehicles[0].DataRequest(context.Background(), "charge_state")
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(HaveKey("battery_level"))
		})

		It("form-encodes POST bodies", func() {
			httpmock.RegisterResponder(http.MethodPost, baseURL+"/api/1/vehicles/42/command/set_charge_limit",
				func(r *http.Request) (*http.Response, error) {
					Expect(r.Header.Get("Content-Type")).To(Equal("application/x-www-form-urlencoded"))
					Expect(r.ParseForm()).To(Succeed())
					Expect(r.PostForm.Get("percent")).To(Equal("80"))
					return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
						"response": map[string]interface{}{"result": true, "reason": ""},
					})
				})

			reply, err := acct.Vehicles[0].Command(context.Background(), "set_charge_limit", url.Values{"percent": {"80"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(HaveKey("response"))
		})

		It("returns API-level error payloads unchanged", func() {
			httpmock.RegisterResponder(http.MethodPost, baseURL+"/api/1/vehicles/42/command/charge_start",
				httpmock.NewStringResponder(http.StatusOK, `{"response":{"result":false,"reason":"charging"}}`))

			reply, err := acct.Vehicles[0].Command(context.Background(), "charge_start", nil)
			Expect(err).NotTo(HaveOccurred())
			response, ok := reply["response"].(map[string]interface{})
			Expect(ok).To(BeTrue())
			Expect(response["result"]).To(Equal(false))
			Expect(response["reason"]).To(Equal("charging"))
		})

		It("reuses the cached token across calls", func() {
			httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/1/vehicles/42/data",
				httpmock.NewStringResponder(http.StatusOK, `{"response":{"vin":"5YJ3E1EA7KF000000"}}`))
			for i := 0; i < 3; i++ {
				_, err := acct.Vehicles[0].Data(context.Background())
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(httpmock.GetCallCountInfo()["POST "+oauthURL]).To(Equal(1))
		})

		It("surfaces non-2xx replies as HttpError", func() {
			httpmock.RegisterResponder(http.MethodGet, baseURL+"/api/1/vehicles/42/data",
				httpmock.NewStringResponder(http.StatusInternalServerError, `{"error":"upstream"}`))
			_, err := acct.Get(context.Background(), "vehicles/42/data")
			var httpErr *protocol.HttpError
			Expect(errors.As(err, &httpErr)).To(BeTrue())
			Expect(httpErr.Code).To(Equal(http.StatusInternalServerError))
		})

		It("looks up vehicles by VIN and id", func() {
			car, err := acct.VehicleByVIN("5YJ3E1EA7KF000000")
			Expect(err).NotTo(HaveOccurred())
			Expect(car.ID()).To(Equal(int64(42)))

			car, err = acct.VehicleByID(42)
			Expect(err).NotTo(HaveOccurred())
			Expect(car.VIN()).To(Equal("5YJ3E1EA7KF000000"))

			_, err = acct.VehicleByVIN("unknown")
			Expect(err).To(MatchError(protocol.ErrNotFound))
			_, err = acct.VehicleByID(7)
			Expect(err).To(MatchError(protocol.ErrNotFound))
		})

		It("applies a caller user agent ahead of the library token", func() {
			registerOAuth()
			registerVehicles(map[string]interface{}{"id": 42, "vin": "X"})
			opts.UserAgent = "my-dashboard/2.0"
			custom, err := account.New(context.Background(), opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(custom.UserAgent).To(HavePrefix("my-dashboard/2.0 "))
			Expect(strings.Contains(custom.UserAgent, "teslajson/")).To(BeTrue())
		})
	})
})
