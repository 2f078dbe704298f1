package proxy_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/LukeDurrant/teslajson/mocks"
	"github.com/LukeDurrant/teslajson/pkg/protocol"
	"github.com/LukeDurrant/teslajson/pkg/proxy"
)

var _ = Describe("Proxy", func() {
	var (
		ctrl        *gomock.Controller
		p           *proxy.Proxy
		mockAccount *mocks.ProxyAccount
	)

	sendRequest := func(method, path, contentType string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rr := httptest.NewRecorder()
		p.ServeHTTP(rr, req)
		return rr
	}

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		mockAccount = mocks.NewProxyAccount(ctrl)
		p = proxy.New(mockAccount)
		DeferCleanup(func() {
			ctrl.Finish()
		})
	})

	Context("GET requests", func() {
		It("forwards the endpoint and relays the reply", func() {
			mockAccount.EXPECT().Get(gomock.Any(), "vehicles").Return(map[string]interface{}{
				"response": []interface{}{
					map[string]interface{}{"id": json.Number("9007199254740993"), "display_name": "Kitt"},
				},
				"count": json.Number("1"),
			}, nil)

			rr := sendRequest(http.MethodGet, "/api/1/vehicles", "", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Header().Get("Content-Type")).To(Equal("application/json"))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":[{"id":9007199254740993,"display_name":"Kitt"}],"count":1}`))
		})

		It("carries the query string through to the endpoint", func() {
			mockAccount.EXPECT().Get(gomock.Any(), "vehicles/42/data_request/drive_state?let=37").Return(map[string]interface{}{
				"response": map[string]interface{}{"speed": nil},
			}, nil)

			rr := sendRequest(http.MethodGet, "/api/1/vehicles/42/data_request/drive_state?let=37", "", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
		})
	})

	Context("POST requests", func() {
		It("passes form bodies through", func() {
			mockAccount.EXPECT().Post(gomock.Any(), "vehicles/42/command/set_charge_limit", url.Values{"percent": {"80"}}).
				Return(map[string]interface{}{"response": map[string]interface{}{"result": true, "reason": ""}}, nil)

			rr := sendRequest(http.MethodPost, "/api/1/vehicles/42/command/set_charge_limit",
				"application/x-www-form-urlencoded", []byte("percent=80"))
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":{"result":true,"reason":""}}`))
		})

		It("flattens JSON bodies into form fields", func() {
			mockAccount.EXPECT().Post(gomock.Any(), "vehicles/42/command/remote_seat_heater_request",
				url.Values{"heater": {"0"}, "level": {"3"}, "auto": {"false"}}).
				Return(map[string]interface{}{"response": map[string]interface{}{"result": true, "reason": ""}}, nil)

			rr := sendRequest(http.MethodPost, "/api/1/vehicles/42/command/remote_seat_heater_request",
				"application/json", []byte(`{"heater": 0, "level": 3, "auto": false}`))
			Expect(rr.Code).To(Equal(http.StatusOK))
		})

		It("sends an empty form when the body is empty", func() {
			mockAccount.EXPECT().Post(gomock.Any(), "vehicles/42/wake_up", url.Values{}).
				Return(map[string]interface{}{"response": map[string]interface{}{"state": "online"}}, nil)

			rr := sendRequest(http.MethodPost, "/api/1/vehicles/42/wake_up", "", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":{"state":"online"}}`))
		})

		It("rejects nested JSON parameters", func() {
			rr := sendRequest(http.MethodPost, "/api/1/vehicles/42/command/navigation_request",
				"application/json", []byte(`{"value": {"android.intent.extra.TEXT": "123 Main St"}}`))
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
			Expect(rr.Body.String()).To(ContainSubstring("unsupported value"))
		})

		It("rejects bodies over the size cap", func() {
			body := []byte("note=" + strings.Repeat("a", 8192))
			rr := sendRequest(http.MethodPost, "/api/1/vehicles/42/command/set_charge_limit",
				"application/x-www-form-urlencoded", body)
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("upstream errors", func() {
		It("relays API status codes and bodies verbatim", func() {
			mockAccount.EXPECT().Get(gomock.Any(), "vehicles/42/data_request/charge_state").
				Return(nil, &protocol.HttpError{Code: http.StatusUnauthorized, Message: `{"error":"invalid bearer token"}`})

			rr := sendRequest(http.MethodGet, "/api/1/vehicles/42/data_request/charge_state", "", nil)
			Expect(rr.Code).To(Equal(http.StatusUnauthorized))
			Expect(rr.Body.String()).To(MatchJSON(`{"error":"invalid bearer token"}`))
		})

		It("reports asleep vehicles as request timeouts", func() {
			mockAccount.EXPECT().Post(gomock.Any(), "vehicles/42/command/honk_horn", url.Values{}).
				Return(nil, protocol.ErrVehicleUnavailable)

			rr := sendRequest(http.MethodPost, "/api/1/vehicles/42/command/honk_horn", "", nil)
			Expect(rr.Code).To(Equal(http.StatusRequestTimeout))

			var reply proxy.Response
			Expect(json.Unmarshal(rr.Body.Bytes(), &reply)).To(Succeed())
			Expect(reply.Error).To(ContainSubstring("vehicle unavailable"))
		})

		It("reports deadline expiry as a gateway timeout", func() {
			mockAccount.EXPECT().Get(gomock.Any(), "vehicles").Return(nil, context.DeadlineExceeded)

			rr := sendRequest(http.MethodGet, "/api/1/vehicles", "", nil)
			Expect(rr.Code).To(Equal(http.StatusGatewayTimeout))
		})

		It("reports other failures as bad gateway", func() {
			mockAccount.EXPECT().Get(gomock.Any(), "vehicles").Return(nil, errors.New("connection reset"))

			rr := sendRequest(http.MethodGet, "/api/1/vehicles", "", nil)
			Expect(rr.Code).To(Equal(http.StatusBadGateway))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":null,"error":"connection reset","error_description":""}`))
		})
	})

	Context("routing", func() {
		It("rejects paths outside the API root", func() {
			rr := sendRequest(http.MethodGet, "/oauth/token", "", nil)
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})

		It("rejects the bare API root", func() {
			rr := sendRequest(http.MethodGet, "/api/1/", "", nil)
			Expect(rr.Code).To(Equal(http.StatusNotFound))
		})

		It("rejects unsupported methods", func() {
			rr := sendRequest(http.MethodDelete, "/api/1/vehicles", "", nil)
			Expect(rr.Code).To(Equal(http.StatusMethodNotAllowed))
			Expect(rr.Body.String()).To(MatchJSON(`{"response":null,"error":"Method Not Allowed","error_description":""}`))
		})
	})
})
