package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akash-Sakala/AgriQNet/internal/broadcast"
	"github.com/Akash-Sakala/AgriQNet/internal/integrations/gemini"
	"github.com/Akash-Sakala/AgriQNet/internal/integrations/sms"
	"github.com/Akash-Sakala/AgriQNet/internal/processing"
	"github.com/Akash-Sakala/AgriQNet/internal/region"
	"github.com/Akash-Sakala/AgriQNet/internal/storage"
	"github.com/Akash-Sakala/AgriQNet/internal/subscribers"
	"github.com/Akash-Sakala/AgriQNet/internal/zones"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const testSecret = "test-secret"

type fixture struct {
	srv   *Server
	state *State
	ch    sms.Channel
	proc  *processing.Processor
}

func newFixture(t *testing.T, ch sms.Channel, secret string, analyzer PestAnalyzer) *fixture {
	t.Helper()
	g := region.Default()
	dir := subscribers.NewDirectory(storage.NewMemory(), g, nil)
	bc := broadcast.New(g, dir, ch, broadcast.Options{})
	st := NewState(StateOptions{Districts: g.Districts()})
	st.SetTrigger(bc.Broadcast)

	proc := processing.NewProcessor(8, st.HandleAlert, nil)
	proc.StartWorkers(1)
	t.Cleanup(proc.Close)

	srv := NewServer(st, Deps{
		Graph:       g,
		Directory:   dir,
		Verifier:    subscribers.NewVerifier(dir, ch, time.Minute, nil),
		Broadcaster: bc,
		Processor:   proc,
		Channel:     ch,
		Analyzer:    analyzer,
		JWTSecret:   secret,
	})
	return &fixture{srv: srv, state: st, ch: ch, proc: proc}
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestBroadcastEndpoint(t *testing.T) {
	f := newFixture(t, &sms.Recorder{}, "", nil)
	for phone, d := range map[string]string{"+910000000001": "Mysuru", "+910000000002": "Hassan", "+910000000004": "Tumakuru"} {
		rr := f.do(t, http.MethodPost, "/api/subscriptions", map[string]string{"phone": phone, "district": d}, "")
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := f.do(t, http.MethodPost, "/api/broadcast", map[string]string{"district": "Mysuru", "pest": "Fall Armyworm"}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	got := decode[map[string]any](t, rr)
	assert.Equal(t, 1.0, got["redDelivered"])
	assert.Equal(t, 1.0, got["orangeDelivered"])
	assert.Equal(t, 1.0, got["yellowDelivered"])
	assert.Equal(t, false, got["wasSimulated"])

	status := f.state.Status()
	assert.Equal(t, StatusRed, status["Mysuru"])
	assert.Equal(t, StatusOrange, status["Kodagu"])
	assert.Equal(t, StatusYellow, status["Tumakuru"])
	assert.Equal(t, StatusGreen, status["Bidar"])

	rr = f.do(t, http.MethodGet, "/api/broadcasts", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]broadcast.Outcome](t, rr), 1)
}

func TestBroadcastEndpointPreconditions(t *testing.T) {
	f := newFixture(t, &sms.Recorder{}, "", nil)

	rr := f.do(t, http.MethodPost, "/api/broadcast", map[string]string{"district": "Mysuru"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = f.do(t, http.MethodPost, "/api/broadcast", map[string]string{"pest": "Locust"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, f.state.Outcomes())
}

func TestOperatorAuth(t *testing.T) {
	f := newFixture(t, &sms.Recorder{}, testSecret, nil)
	body := map[string]string{"district": "Mysuru", "pest": "Locust"}

	rr := f.do(t, http.MethodPost, "/api/broadcast", body, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	bad, err := NewOperatorToken("other-secret", "ops", time.Hour)
	require.NoError(t, err)
	rr = f.do(t, http.MethodPost, "/api/broadcast", body, bad)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	expired, err := NewOperatorToken(testSecret, "ops", -time.Minute)
	require.NoError(t, err)
	rr = f.do(t, http.MethodPost, "/api/broadcast", body, expired)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	token, err := NewOperatorToken(testSecret, "ops", time.Hour)
	require.NoError(t, err)
	rr = f.do(t, http.MethodPost, "/api/broadcast", body, token)
	assert.Equal(t, http.StatusOK, rr.Code)

	// Las rutas públicas no exigen token.
	rr = f.do(t, http.MethodGet, "/api/status", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestOperatorAuthRequiresRole(t *testing.T) {
	mw := operatorAuth(testSecret)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: "farmer"}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rr)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/broadcast", nil)
	c.Request.Header.Set("Authorization", "Bearer "+token)
	mw(c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestSubscriptionOTPFlow(t *testing.T) {
	f := newFixture(t, sms.NewSimulator(nil), "", nil)

	rr := f.do(t, http.MethodPost, "/api/subscriptions/otp",
		map[string]string{"countryCode": "+91", "phone": "9876543210", "district": "Mandya"}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	p := decode[subscribers.Pending](t, rr)
	assert.True(t, p.Simulated)
	require.Len(t, p.DemoCode, 6)

	rr = f.do(t, http.MethodPost, "/api/subscriptions/verify",
		map[string]string{"countryCode": "91", "phone": "9876543210", "code": "000000"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/subscriptions/verify",
		map[string]string{"countryCode": "+91", "phone": "9876543210", "code": p.DemoCode}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.do(t, http.MethodGet, "/api/districts", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Districts []districtView `json:"districts"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Districts, 31)
	for _, d := range body.Districts {
		if d.Name == "Mandya" {
			assert.Equal(t, 1, d.Subscribers)
		}
	}

	rr = f.do(t, http.MethodPost, "/api/subscriptions/verify",
		map[string]string{"phone": "+919876543210", "code": p.DemoCode}, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSubscribeValidation(t *testing.T) {
	f := newFixture(t, &sms.Recorder{}, "", nil)

	rr := f.do(t, http.MethodPost, "/api/subscriptions", map[string]string{"phone": "+911234567890"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = f.do(t, http.MethodPost, "/api/subscriptions", map[string]string{"phone": "12", "district": "Mysuru"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestZonesEndpoint(t *testing.T) {
	f := newFixture(t, &sms.Recorder{}, "", nil)

	rr := f.do(t, http.MethodGet, "/api/zones/Atlantis", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Known bool        `json:"known"`
		Zones zones.Zones `json:"zones"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Known)
	assert.Equal(t, []string{"Atlantis"}, body.Zones.Red)
	assert.Empty(t, body.Zones.Orange)

	rr = f.do(t, http.MethodGet, "/api/zones/Dakshina%20Kannada", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Known)
	assert.Contains(t, body.Zones.Orange, "Udupi")
}

func TestReportInboundSMSForm(t *testing.T) {
	f := newFixture(t, &sms.Recorder{}, "", nil)

	form := url.Values{"From": {"+919999999999"}, "Body": {"Locust swarm seen near Kalaburagi today"}}
	req := httptest.NewRequest(http.MethodPost, "/api/reports", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Equal(t, "Kalaburagi", decode[map[string]string](t, rr)["district"])
}

func TestReportValidation(t *testing.T) {
	f := newFixture(t, &sms.Recorder{}, "", nil)

	rr := f.do(t, http.MethodPost, "/api/reports", map[string]string{"text": "aphids everywhere"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = f.do(t, http.MethodPost, "/api/reports", map[string]string{"district": "Mysuru"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	f.proc.Close()
	rr = f.do(t, http.MethodPost, "/api/reports", map[string]string{"district": "Mysuru", "text": "thrips"}, "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestReportBroadcastRequiresOperatorForNamedPest(t *testing.T) {
	token, err := NewOperatorToken(testSecret, "ops", time.Hour)
	require.NoError(t, err)
	report := map[string]string{"district": "Mysuru", "pest": "Locust"}

	tests := []struct {
		name      string
		token     string
		severity  string
		sends     int
		broadcast bool
	}{
		{"anonymous", "", processing.SeverityMedium, 0, false},
		{"operator", token, processing.SeverityCritical, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &sms.Recorder{}
			f := newFixture(t, rec, testSecret, nil)
			for phone, d := range map[string]string{"+910000000001": "Mysuru", "+910000000002": "Hassan"} {
				rr := f.do(t, http.MethodPost, "/api/subscriptions", map[string]string{"phone": phone, "district": d}, token)
				require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
			}

			rr := f.do(t, http.MethodPost, "/api/reports", report, tt.token)
			require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
			// Close espera a que los workers terminen la alerta y su broadcast.
			f.proc.Close()

			alerts := f.state.ListAlerts(context.Background())
			require.Len(t, alerts, 1)
			assert.Equal(t, tt.severity, alerts[0].Severity)
			assert.Equal(t, tt.broadcast, alerts[0].BroadcastID != "")
			assert.Len(t, rec.Calls(), tt.sends)
			if tt.broadcast {
				assert.Len(t, f.state.Outcomes(), 1)
			} else {
				assert.Empty(t, f.state.Outcomes())
			}
		})
	}
}

func TestMatchDistrict(t *testing.T) {
	districts := region.Default().Districts()
	assert.Equal(t, "Bengaluru Rural", matchDistrict(districts, "stem borer in bengaluru rural fields"))
	assert.Equal(t, "Dakshina Kannada", matchDistrict(districts, "Whitefly in DAKSHINA KANNADA"))
	assert.Empty(t, matchDistrict(districts, "no place named here"))
}

type fakeAnalyzer struct {
	got []byte
	err error
}

func (f *fakeAnalyzer) AnalyzePestImage(_ context.Context, image []byte, _, _ string) (gemini.PestAnalysis, error) {
	f.got = image
	return gemini.PestAnalysis{PestName: "Aphid", Severity: "Medium"}, f.err
}

func multipartImage(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", "leaf.jpg")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.WriteField("lang", "kn"))
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestDetectEndpoint(t *testing.T) {
	f := newFixture(t, &sms.Recorder{}, "", nil)
	body, ct := multipartImage(t, []byte{0xff, 0xd8, 0xff})
	req := httptest.NewRequest(http.MethodPost, "/api/detect", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	fa := &fakeAnalyzer{}
	f = newFixture(t, &sms.Recorder{}, "", fa)
	body, ct = multipartImage(t, []byte{0xff, 0xd8, 0xff})
	req = httptest.NewRequest(http.MethodPost, "/api/detect", body)
	req.Header.Set("Content-Type", ct)
	rr = httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, fa.got)
	assert.Equal(t, "Aphid", decode[gemini.PestAnalysis](t, rr).PestName)

	fa.err = errors.New("quota")
	body, ct = multipartImage(t, []byte{1})
	req = httptest.NewRequest(http.MethodPost, "/api/detect", body)
	req.Header.Set("Content-Type", ct)
	rr = httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestSendSMSEndpoint(t *testing.T) {
	rec := &sms.Recorder{}
	f := newFixture(t, rec, "", nil)

	rr := f.do(t, http.MethodPost, "/api/send-sms", map[string]string{"to": "+911234567890", "body": "hola"}, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, rec.Calls(), 1)

	rr = f.do(t, http.MethodPost, "/api/send-sms", map[string]string{"to": "+911234567890"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rec.Respond = func(string, string) sms.Result {
		return sms.Result{Err: &sms.RejectedError{Code: 21610, Message: "unsubscribed recipient"}}
	}
	rr = f.do(t, http.MethodPost, "/api/send-sms", map[string]string{"to": "+911234567890", "body": "hola"}, "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestStateEscalationAndReset(t *testing.T) {
	st := NewState(StateOptions{Districts: []string{"A", "B", "C"}})

	st.RecordOutcome(broadcast.Outcome{Zones: zones.Zones{Red: []string{"A"}, Orange: []string{"B"}, Yellow: []string{"C"}}})
	st.RecordOutcome(broadcast.Outcome{Zones: zones.Zones{Red: []string{"C"}, Orange: []string{"A"}, Yellow: []string{"B"}}})

	assert.Equal(t, map[string]string{"A": StatusRed, "B": StatusOrange, "C": StatusRed}, st.Status())

	st.Reset()
	assert.Equal(t, map[string]string{"A": StatusGreen, "B": StatusGreen, "C": StatusGreen}, st.Status())
	assert.Len(t, st.Outcomes(), 2)
}

func TestStateHistoryLimit(t *testing.T) {
	st := NewState(StateOptions{HistoryLimit: 2})
	for i := range 3 {
		st.HandleAlert(processing.Alert{ID: string(rune('a' + i)), Timestamp: time.Unix(int64(i), 0)})
	}
	list := st.ListAlerts(context.Background())
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, &sms.Recorder{}, "", nil)
	rr := f.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rr)["status"])
}
