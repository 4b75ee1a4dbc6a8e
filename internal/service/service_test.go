package service

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubdetect/internal/backend"
	"pubdetect/internal/capture"
	"pubdetect/internal/models"
	"pubdetect/internal/repository"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (r *recordingPublisher) Publish(_ context.Context, e models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return tok
}

func newBackend(t *testing.T, mux *http.ServeMux) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return backend.NewClient(srv.URL, 2*time.Second)
}

func TestLoginEmptyCredentialsMakeNoCall(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { atomic.AddInt32(&calls, 1) })

	sessions := repository.NewMemorySessionStore(time.Hour)
	svc := NewAuthService(newBackend(t, mux), sessions, nil, zerolog.Nop())
	session := &models.ClientSession{ID: "s1"}

	for _, creds := range [][2]string{{"", "x"}, {"alice", ""}, {"   ", "  "}} {
		res := svc.Login(context.Background(), session, creds[0], creds[1])
		assert.False(t, res.Success)
		assert.Equal(t, MsgFillAllFields, res.Error)
		assert.ErrorIs(t, res.Err, ErrValidation)

		res = svc.Register(context.Background(), session, creds[0], creds[1])
		assert.Equal(t, MsgFillAllFields, res.Error)
	}
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.False(t, session.Authenticated)
}

func TestLoginSuccessStoresToken(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "alice", "user_id": 7})
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/users/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": token, "token_type": "bearer"})
	})

	sessions := repository.NewMemorySessionStore(time.Hour)
	pub := &recordingPublisher{}
	svc := NewAuthService(newBackend(t, mux), sessions, pub, zerolog.Nop())
	session := &models.ClientSession{ID: "s1", Theme: "dark"}

	res := svc.Login(context.Background(), session, " alice ", "secret")
	require.True(t, res.Success)
	assert.True(t, res.SignedIn)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	stored, err := sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, stored.Authenticated)
	assert.Equal(t, token, stored.Token)
	assert.Equal(t, "7", stored.UserID)
	assert.Equal(t, "dark", stored.Theme)
	assert.Equal(t, []string{"auth.login"}, pub.actions())

	require.NoError(t, svc.Logout(context.Background(), session))
	stored, err = sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, stored.Authenticated)
	assert.Empty(t, stored.Token)
	assert.Equal(t, "dark", stored.Theme)
}

func TestLoginFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch body["username"] {
		case "detail":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Invalid credentials"}`))
		case "bare":
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		}
	})

	sessions := repository.NewMemorySessionStore(time.Hour)
	svc := NewAuthService(newBackend(t, mux), sessions, nil, zerolog.Nop())
	session := &models.ClientSession{ID: "s1"}

	res := svc.Login(context.Background(), session, "detail", "x")
	assert.False(t, res.Success)
	assert.Equal(t, "Invalid credentials", res.Error)
	var apiErr *backend.APIError
	require.ErrorAs(t, res.Err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	assert.Equal(t, MsgInvalidCredentials, svc.Login(context.Background(), session, "bare", "x").Error)
	res = svc.Login(context.Background(), session, "other", "x")
	assert.Equal(t, MsgNetwork, res.Error)
	require.ErrorAs(t, res.Err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)

	_, err := sessions.Get(context.Background(), "s1")
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
	assert.False(t, session.Authenticated)

	unreachable := NewAuthService(backend.NewClient("http://127.0.0.1:1", 200*time.Millisecond), sessions, nil, zerolog.Nop())
	assert.Equal(t, MsgNetwork, unreachable.Login(context.Background(), session, "a", "b").Error)
}

func TestLoginRejectsConcurrentAttempt(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/users/login", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(entered)
		}
		<-release
		_, _ = w.Write([]byte(`{"access_token":"opaque"}`))
	})

	svc := NewAuthService(newBackend(t, mux), repository.NewMemorySessionStore(time.Hour), nil, zerolog.Nop())
	session := &models.ClientSession{ID: "s1"}

	done := make(chan AuthResult)
	go func() { done <- svc.Login(context.Background(), session, "alice", "pw") }()
	<-entered

	second := svc.Login(context.Background(), &models.ClientSession{ID: "s1"}, "alice", "pw")
	assert.Equal(t, MsgInFlight, second.Error)
	assert.ErrorIs(t, second.Err, ErrAuthInFlight)

	close(release)
	first := <-done
	assert.True(t, first.Success)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "alice", session.UserID)
}

func TestRegisterWithAndWithoutToken(t *testing.T) {
	withToken := true
	mux := http.NewServeMux()
	mux.HandleFunc("/users/register", func(w http.ResponseWriter, r *http.Request) {
		if withToken {
			_, _ = w.Write([]byte(`{"access_token":"opaque-token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":3,"username":"bob"}`))
	})

	svc := NewAuthService(newBackend(t, mux), repository.NewMemorySessionStore(time.Hour), nil, zerolog.Nop())

	session := &models.ClientSession{ID: "s1"}
	res := svc.Register(context.Background(), session, "bob", "pw")
	assert.Equal(t, AuthResult{Success: true, SignedIn: true}, res)
	assert.Equal(t, "opaque-token", session.Token)

	withToken = false
	other := &models.ClientSession{ID: "s2"}
	res = svc.Register(context.Background(), other, "bob", "pw")
	assert.Equal(t, AuthResult{Success: true}, res)
	assert.False(t, other.Authenticated)
}

func TestRegisterFailureMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/register", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	svc := NewAuthService(newBackend(t, mux), repository.NewMemorySessionStore(time.Hour), nil, zerolog.Nop())
	assert.Equal(t, MsgRegisterFailed, svc.Register(context.Background(), &models.ClientSession{ID: "s"}, "a", "b").Error)
}

// predictionBackend is a stateful FastAPI stand-in.
type predictionBackend struct {
	mu        sync.Mutex
	records   []map[string]any
	saveFails bool
	classify  string
	gotToken  string
	lists     int
}

func (b *predictionBackend) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload-image", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.gotToken = r.Header.Get("Authorization")
		b.mu.Unlock()
		if _, _, err := r.FormFile("file"); err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		_, _ = w.Write([]byte(b.classify))
	})
	mux.HandleFunc("/save-prediction", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.saveFails {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"database is locked"}`))
			return
		}
		var rec map[string]any
		_ = json.NewDecoder(r.Body).Decode(&rec)
		rec["id"] = len(b.records) + 1
		rec["timestamp"] = time.Date(2024, 5, 1, 10, len(b.records), 0, 0, time.UTC).Format("2006-01-02T15:04:05")
		b.records = append(b.records, rec)
		_ = json.NewEncoder(w).Encode(rec)
	})
	mux.HandleFunc("/prediction", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.lists++
		_ = json.NewEncoder(w).Encode(b.records)
	})
	return mux
}

func testBuffer(t *testing.T) *capture.Buffer {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 2, 2))))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "shot.png")
	require.NoError(t, err)
	_, _ = part.Write(img.Bytes())
	require.NoError(t, mw.Close())
	form, err := multipart.NewReader(&body, mw.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)

	buf, err := capture.NewWidget(capture.Options{}, nil).FromForm(context.Background(), form)
	require.NoError(t, err)
	return buf
}

func signedInSession() models.ClientSession {
	s := models.ClientSession{ID: "s1"}
	s.SignIn("tok", "1", "alice")
	return s
}

func TestSubmitSavesAndRefetches(t *testing.T) {
	fake := &predictionBackend{
		classify: `{"label":"pub","confidence":87,"filename":"x.jpg"}`,
		records:  []map[string]any{{"id": 0, "label": "NO PUB", "confidence": 40, "image_path": "image/old.png", "timestamp": "2024-04-30T09:00:00", "user_id": 1}},
	}
	pub := &recordingPublisher{}
	svc := NewPredictionService(newBackend(t, fake.mux()), nil, pub, 0, zerolog.Nop())

	out, err := svc.Submit(context.Background(), signedInSession(), testBuffer(t), nil)
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, out.State)
	assert.NoError(t, out.ClassifyError)
	assert.NoError(t, out.PersistError)
	require.NotNil(t, out.Prediction)
	assert.Equal(t, models.LabelPub, out.Prediction.Label)
	assert.Equal(t, 87.0, out.Prediction.Confidence)
	assert.Equal(t, "image/x.jpg", out.Prediction.ImagePath)
	assert.Equal(t, "Bearer tok", fake.gotToken)

	require.Len(t, fake.records, 2)
	assert.EqualValues(t, 1, fake.records[1]["user_id"])
	assert.Equal(t, 1, fake.lists)

	require.Len(t, out.History, 2)
	assert.Equal(t, models.LabelPub, out.History[0].Label)
	assert.Equal(t, 87.0, out.History[0].Confidence)
	assert.Equal(t, StateIdle, svc.State("s1"))
	assert.Equal(t, []string{"prediction.classified"}, pub.actions())

	last, ok := svc.Last("s1")
	require.True(t, ok)
	assert.Equal(t, out.Prediction, last.Prediction)
}

func TestSubmitSaveFailureKeepsResult(t *testing.T) {
	fake := &predictionBackend{classify: `{"label":"NoPub","confidence":64,"filename":"a.png"}`, saveFails: true}
	pub := &recordingPublisher{}
	svc := NewPredictionService(newBackend(t, fake.mux()), nil, pub, 0, zerolog.Nop())

	out, err := svc.Submit(context.Background(), signedInSession(), testBuffer(t), nil)
	require.NoError(t, err)

	assert.Equal(t, StateFailed, out.State)
	require.NotNil(t, out.Prediction)
	assert.Equal(t, models.LabelNoPub, out.Prediction.Label)
	assert.ErrorIs(t, out.PersistError, ErrPersistence)
	assert.NoError(t, out.ClassifyError)
	assert.Equal(t, "could not save the prediction: database is locked", Message(out.PersistError))
	assert.Equal(t, 1, fake.lists)
	assert.Empty(t, out.History)
	assert.Contains(t, pub.actions(), "prediction.persist_failed")
}

func TestSubmitClassificationFailures(t *testing.T) {
	for name, body := range map[string]string{
		"unknown label": `{"label":"maybe","confidence":50,"filename":"a.png"}`,
		"out of range":  `{"label":"pub","confidence":120,"filename":"a.png"}`,
		"missing field": `{"label":"pub"}`,
	} {
		t.Run(name, func(t *testing.T) {
			fake := &predictionBackend{classify: body}
			svc := NewPredictionService(newBackend(t, fake.mux()), nil, nil, 0, zerolog.Nop())

			out, err := svc.Submit(context.Background(), signedInSession(), testBuffer(t), nil)
			require.NoError(t, err)
			assert.Equal(t, StateFailed, out.State)
			assert.Nil(t, out.Prediction)
			assert.ErrorIs(t, out.ClassifyError, ErrClassification)
			assert.ErrorIs(t, out.ClassifyError, backend.ErrUnexpectedPayload)
			assert.Empty(t, fake.records)
			assert.Equal(t, 1, fake.lists)
		})
	}
}

func TestSubmitDetachedFromCaller(t *testing.T) {
	fake := &predictionBackend{classify: `{"label":"pub","confidence":87,"filename":"x.jpg"}`}
	svc := NewPredictionService(newBackend(t, fake.mux()), nil, nil, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := svc.Submit(ctx, signedInSession(), testBuffer(t), nil)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, out.State)
}

type blockingBackend struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBackend) UploadImage(context.Context, string, string, string, []byte) (backend.Classification, error) {
	close(b.entered)
	<-b.release
	c := 90.0
	return backend.Classification{Label: "pub", Confidence: &c, Filename: "x.jpg"}, nil
}

func (b *blockingBackend) SavePrediction(context.Context, string, models.Prediction) error { return nil }

func (b *blockingBackend) ListPredictions(context.Context, string) ([]models.Prediction, error) {
	return nil, nil
}

func TestSubmitOneInFlightAndResetDropsOutcome(t *testing.T) {
	fake := &blockingBackend{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewPredictionService(fake, nil, nil, 0, zerolog.Nop())
	session := signedInSession()
	buf := testBuffer(t)

	var accepted atomic.Int32
	done := make(chan Outcome)
	go func() {
		out, _ := svc.Submit(context.Background(), session, buf, func() { accepted.Add(1) })
		done <- out
	}()
	<-fake.entered
	assert.EqualValues(t, 1, accepted.Load())

	assert.Equal(t, StateSubmitting, svc.State("s1"))
	_, err := svc.Submit(context.Background(), session, testBuffer(t), func() { accepted.Add(1) })
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.EqualValues(t, 1, accepted.Load())

	svc.Dismiss("s1")
	close(fake.release)
	out := <-done
	assert.Equal(t, StateSucceeded, out.State)

	_, ok := svc.Last("s1")
	assert.False(t, ok)
	assert.Equal(t, StateIdle, svc.State("s1"))
}

type fakeArchive struct {
	mu   sync.Mutex
	meta map[string]string
}

func (f *fakeArchive) PutCapture(_ context.Context, data []byte, contentType, ext string, meta map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta = meta
	return "captures/2024/05/01/abc." + ext, nil
}

func TestSubmitArchives(t *testing.T) {
	fake := &predictionBackend{classify: `{"label":"pub","confidence":87,"filename":"x.jpg"}`}
	archive := &fakeArchive{}
	svc := NewPredictionService(newBackend(t, fake.mux()), archive, nil, 0, zerolog.Nop())

	out, err := svc.Submit(context.Background(), signedInSession(), testBuffer(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "captures/2024/05/01/abc.png", out.ArchiveKey)
	assert.Equal(t, "upload", archive.meta["source"])
}

func TestSweepDropsIdleWorkflows(t *testing.T) {
	fake := &blockingBackend{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewPredictionService(fake, nil, nil, 0, zerolog.Nop())

	assert.Equal(t, StateIdle, svc.State("never-seen"))
	svc.Dismiss("never-seen")
	assert.Equal(t, 0, svc.Len())

	buf := testBuffer(t)
	done := make(chan struct{})
	go func() {
		_, _ = svc.Submit(context.Background(), signedInSession(), buf, nil)
		close(done)
	}()
	<-fake.entered

	assert.Equal(t, 0, svc.Sweep(time.Now().Add(time.Hour)))
	close(fake.release)
	<-done

	assert.Equal(t, 0, svc.Sweep(time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, svc.Sweep(time.Now().Add(time.Second)))
	_, ok := svc.Last("s1")
	assert.False(t, ok)
	assert.Equal(t, 0, svc.Len())
}

func TestSubmitWithoutImage(t *testing.T) {
	svc := NewPredictionService(&blockingBackend{}, nil, nil, 0, zerolog.Nop())
	_, err := svc.Submit(context.Background(), signedInSession(), nil, nil)
	assert.ErrorIs(t, err, ErrNoImage)
}
