package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aquahub/internal/app/chat"
	"aquahub/internal/app/user"
	"aquahub/internal/client"
	"aquahub/internal/configs"
	"aquahub/internal/handler"
)

func testConfig() *configs.AppConfig {
	return &configs.AppConfig{
		Environment:     "development",
		Port:            8080,
		WSConnRate:      100,
		WSConnBurst:     100,
		SendBufferSize:  64,
		MaxContentBytes: 5000,
	}
}

func newTestServer(t *testing.T, cfg *configs.AppConfig) *httptest.Server {
	t.Helper()

	hub := chat.NewHub(chat.NewRegistry(), cfg.MaxContentBytes)
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	srv := httptest.NewServer(handler.Router(&handler.AppDeps{Hub: hub, Config: cfg}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()

	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()

	require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	return res.StatusCode
}

func TestRouter_HealthEndpoint(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, testConfig())

	var body struct {
		Code    int               `json:"code"`
		Message string            `json:"message"`
		Data    map[string]string `json:"data"`
	}
	status := getJSON(t, srv.URL+"/health", &body)

	req.Equal(http.StatusOK, status)
	req.Equal(0, body.Code)
	req.Equal("success", body.Message)
	req.Equal("ok", body.Data["status"])
	req.Equal("aquahub", body.Data["service"])
}

func TestRouter_UsersEndpointEmptyRoster(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, testConfig())

	var body struct {
		Code int               `json:"code"`
		Data []json.RawMessage `json:"data"`
	}
	status := getJSON(t, srv.URL+"/api/users", &body)

	req.Equal(http.StatusOK, status)
	req.Equal(0, body.Code)
	req.NotNil(body.Data)
	req.Empty(body.Data)
}

func TestRouter_UpgradeIsRateLimitedPerIP(t *testing.T) {
	req := require.New(t)

	cfg := testConfig()
	cfg.WSConnRate = 0.01
	cfg.WSConnBurst = 1
	srv := newTestServer(t, cfg)

	// the first attempt consumes the burst token; a plain GET fails the
	// handshake but has already passed the limiter
	res, err := http.Get(srv.URL + "/ws")
	req.NoError(err)
	res.Body.Close()
	req.Equal(http.StatusBadRequest, res.StatusCode)

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	status := getJSON(t, srv.URL+"/ws", &body)

	req.Equal(http.StatusTooManyRequests, status)
	req.Equal(1002, body.Code)
	req.NotEmpty(body.Message)
}

func TestRouter_UpgradeEnforcesOriginPolicyInProduction(t *testing.T) {
	req := require.New(t)

	cfg := testConfig()
	cfg.Environment = "production"
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	srv := newTestServer(t, cfg)

	get := func(origin string) *http.Response {
		t.Helper()

		httpReq, err := http.NewRequest(http.MethodGet, srv.URL+"/ws", nil)
		req.NoError(err)
		if origin != "" {
			httpReq.Header.Set("Origin", origin)
		}

		res, err := http.DefaultClient.Do(httpReq)
		req.NoError(err)
		return res
	}

	// a disallowed origin is rejected before any upgrade is attempted
	res := get("https://evil.example.com")
	defer res.Body.Close()
	req.Equal(http.StatusForbidden, res.StatusCode)

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	req.NoError(json.NewDecoder(res.Body).Decode(&body))
	req.Equal(1003, body.Code)
	req.NotEmpty(body.Message)

	// an allowed origin passes the policy; the plain GET then fails the
	// handshake, which proves it reached the upgrader
	allowed := get("https://app.example.com")
	allowed.Body.Close()
	req.Equal(http.StatusBadRequest, allowed.StatusCode)

	// no Origin header means a non-browser client and is accepted
	headless := get("")
	headless.Body.Close()
	req.Equal(http.StatusBadRequest, headless.StatusCode)
}

// TestRouter_TwoUserSession drives the full protocol through the real stack:
// two clients connect over WebSocket, log in, chat, announce typing, move,
// exchange signaling payloads, and leave.
func TestRouter_TwoUserSession(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, testConfig())
	ctx := context.Background()

	var sigMu sync.Mutex
	var hanaOffers []chat.OfferNotice
	var taroAnswers []chat.AnswerNotice

	taro := client.NewSynchronizer(client.Config{
		URL: wsURL(srv),
		OnAnswer: func(n chat.AnswerNotice) {
			sigMu.Lock()
			taroAnswers = append(taroAnswers, n)
			sigMu.Unlock()
		},
	})
	hana := client.NewSynchronizer(client.Config{
		URL: wsURL(srv),
		OnOffer: func(n chat.OfferNotice) {
			sigMu.Lock()
			hanaOffers = append(hanaOffers, n)
			sigMu.Unlock()
		},
	})

	// Taro connects and logs in
	req.NoError(taro.Connect(ctx))
	t.Cleanup(taro.Logout)
	taro.Login("Taro")

	req.Eventually(func() bool {
		users := taro.Users()
		msgs := taro.Messages()
		return len(users) == 1 && users[0].Name == "Taro" &&
			len(msgs) == 1 && msgs[0].Content == "Taro が入室しました"
	}, 2*time.Second, 20*time.Millisecond, "Taro sees his own join")

	// Hana connects and logs in; both sides converge on a roster of two
	req.NoError(hana.Connect(ctx))
	t.Cleanup(hana.Logout)
	hana.Login("Hana")

	for name, s := range map[string]*client.Synchronizer{"taro": taro, "hana": hana} {
		s := s
		req.Eventually(func() bool {
			return len(s.Users()) == 2
		}, 2*time.Second, 20*time.Millisecond, "%s sees both users", name)
	}

	taroMsgs := taro.Messages()
	req.Equal("Hana が入室しました", taroMsgs[len(taroMsgs)-1].Content)

	// roster order follows join order on both sides
	req.Equal("Taro", taro.Users()[0].Name)
	req.Equal("Hana", taro.Users()[1].Name)
	req.Equal("Taro", hana.Users()[0].Name)

	// the HTTP roster view agrees with the realtime one
	var rosterBody struct {
		Data []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	getJSON(t, srv.URL+"/api/users", &rosterBody)
	req.Len(rosterBody.Data, 2)
	req.Equal("Taro", rosterBody.Data[0].Name)

	// Hana types, then sends a message; Taro sees the indicator come and go
	hana.SendTyping(true)
	req.Eventually(func() bool {
		names := taro.TypingUsers()
		return len(names) == 1 && names[0] == "Hana"
	}, 2*time.Second, 20*time.Millisecond)
	req.Empty(hana.TypingUsers(), "typing never echoes to the typist")

	hana.SendMessage("こんにちは")
	for _, s := range []*client.Synchronizer{taro, hana} {
		s := s
		req.Eventually(func() bool {
			msgs := s.Messages()
			last := msgs[len(msgs)-1]
			return last.Content == "こんにちは" && last.Sender == "Hana" &&
				last.Type == chat.MessageTypeUser && last.ID != ""
		}, 2*time.Second, 20*time.Millisecond)
	}
	req.Eventually(func() bool {
		return len(taro.TypingUsers()) == 0
	}, 2*time.Second, 20*time.Millisecond, "sending clears the typing indicator")

	// Taro drags his avatar; Hana's roster converges on the final position
	taro.DragPosition(user.Position{X: 40, Y: 50})
	taro.DragPosition(user.Position{X: 80, Y: 90})
	taro.EndDrag()

	req.Eventually(func() bool {
		users := hana.Users()
		return users[0].Position.X == 80 && users[0].Position.Y == 90
	}, 2*time.Second, 20*time.Millisecond)

	// Taro offers a peer connection to Hana; the offer reaches only her,
	// carrying his name, and her answer comes back tagged with her id
	hanaID := hana.ConnectionID()
	taro.SendOffer(hanaID, "v=0 taro-offer")

	req.Eventually(func() bool {
		sigMu.Lock()
		defer sigMu.Unlock()
		return len(hanaOffers) == 1
	}, 2*time.Second, 20*time.Millisecond)

	sigMu.Lock()
	offer := hanaOffers[0]
	sigMu.Unlock()
	req.Equal(taro.ConnectionID(), offer.From)
	req.Equal("Taro", offer.FromName)
	req.Equal("v=0 taro-offer", offer.SDP)

	hana.SendAnswer("v=0 hana-answer")
	req.Eventually(func() bool {
		sigMu.Lock()
		defer sigMu.Unlock()
		return len(taroAnswers) == 1 && taroAnswers[0].CID == hanaID
	}, 2*time.Second, 20*time.Millisecond)

	// Hana leaves; Taro sees the leave notice and the shrunken roster
	hana.Logout()

	req.Eventually(func() bool {
		users := taro.Users()
		msgs := taro.Messages()
		return len(users) == 1 &&
			msgs[len(msgs)-1].Content == "Hana が退室しました"
	}, 2*time.Second, 20*time.Millisecond)
}
