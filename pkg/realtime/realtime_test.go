package realtime

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dclass/domain/core/aggregates"
	"dclass/domain/core/entities"
	pkgerrors "dclass/pkg/errors"
)

// memConn is one end of an in-memory channel; the test plays the server
type memConn struct {
	toClient   chan Envelope
	fromClient chan Envelope
	closed     chan struct{}
	once       sync.Once
}

func newMemConn() *memConn {
	return &memConn{
		toClient:   make(chan Envelope, 64),
		fromClient: make(chan Envelope, 64),
		closed:     make(chan struct{}),
	}
}

func (c *memConn) ReadEnvelope() (Envelope, error) {
	select {
	case env := <-c.toClient:
		return env, nil
	case <-c.closed:
		return Envelope{}, io.EOF
	}
}

func (c *memConn) WriteEnvelope(env Envelope) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	case c.fromClient <- env:
		return nil
	}
}

func (c *memConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// expect reads the next client message, skipping heartbeats unless asked for
func (c *memConn) expect(t *testing.T, event string) Envelope {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case env := <-c.fromClient:
			if env.Event == EventHeartbeat && event != EventHeartbeat {
				continue
			}
			require.Equal(t, event, env.Event)
			return env
		case <-timeout:
			t.Fatalf("timed out waiting for %s", event)
			return Envelope{}
		}
	}
}

func (c *memConn) push(t *testing.T, event, correlationID string, payload any) {
	t.Helper()
	env, err := NewEnvelope(event, correlationID, payload)
	require.NoError(t, err)
	c.toClient <- env
}

type memDialer struct {
	conns chan *memConn
}

func newMemDialer(conns ...*memConn) *memDialer {
	d := &memDialer{conns: make(chan *memConn, len(conns))}
	for _, c := range conns {
		d.conns <- c
	}
	return d
}

func (d *memDialer) Dial(ctx context.Context, _ Identity) (Conn, error) {
	select {
	case c := <-d.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type recordingStore struct {
	mu      sync.Mutex
	applied []aggregates.Model
}

func (s *recordingStore) ApplyDiagram(m aggregates.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, m)
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.applied)
}

func startClient(t *testing.T, diagramID string, store DiagramApplier, conns ...*memConn) (*Client, context.CancelFunc) {
	t.Helper()
	client := NewClient(newMemDialer(conns...), store, Config{
		Identity:          Identity{DiagramID: diagramID, Username: "Ana"},
		HeartbeatInterval: time.Hour,
		RequestTimeout:    2 * time.Second,
	}, nil)
	client.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	ctx, cancel := context.WithCancel(context.Background())
	go client.Run(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, client.WaitConnected(waitCtx))
	t.Cleanup(cancel)
	return client, cancel
}

func classModel(labels ...string) aggregates.Model {
	m := aggregates.NewModel()
	for _, l := range labels {
		n, _ := entities.NewNode(entities.NodeKindClass)
		n.Data.Label = l
		m.Nodes = append(m.Nodes, n)
	}
	return m
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"genera un diagrama de usuarios y pedidos", IntentGenerate},
		{"Crea las CLASES de una tienda", IntentGenerate},
		{"modelo UML de biblioteca", IntentGenerate},
		{"Créa algo", IntentGenerate},
		{"DIAGRÁMA", IntentGenerate},
		{"hola, ¿cómo estás?", IntentConverse},
		{"", IntentConverse},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyIntent(tt.text))
		})
	}
}

func TestParticipantDisplay(t *testing.T) {
	assert.Equal(t, "U", Participant{}.Initials())
	assert.Equal(t, "AL", Participant{Username: "ana lópez garcía"}.Initials())
	assert.Equal(t, "Á", Participant{Username: "álvaro"}.Initials())
	assert.Equal(t, "Usuario abcdef", Participant{SocketID: "abcdef123"}.DisplayName())
	assert.Equal(t, "Usuario ab", Participant{SocketID: "ab"}.DisplayName())
	assert.Equal(t, "Ana", Participant{SocketID: "abcdef123", Username: "Ana"}.DisplayName())
}

func TestEnvelope_OmitsEmptyCorrelation(t *testing.T) {
	env, err := NewEnvelope(EventHeartbeat, "", DiagramRef{DiagramID: "42"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"diagramId":"42"}`, string(env.Data))

	var ref DiagramRef
	require.Error(t, Envelope{Event: EventHeartbeat}.Decode(&ref))
}

func TestClient_PresenceLifecycle(t *testing.T) {
	first, second := newMemConn(), newMemConn()
	client, _ := startClient(t, "42", nil, first, second)

	var mu sync.Mutex
	var rosters [][]Participant
	client.OnParticipants(func(p []Participant) {
		mu.Lock()
		rosters = append(rosters, p)
		mu.Unlock()
	})

	env := first.expect(t, EventGetParticipants)
	var ref DiagramRef
	require.NoError(t, env.Decode(&ref))
	assert.Equal(t, "42", ref.DiagramID)

	first.push(t, EventParticipantsUpdated, "", ParticipantsUpdated{Participants: []Participant{
		{SocketID: "s1", Username: "Ana"},
		{SocketID: "s2"},
	}})
	assert.Eventually(t, func() bool { return len(client.Participants()) == 2 }, time.Second, 5*time.Millisecond)

	// roster is replaced wholesale, not merged
	first.push(t, EventParticipantsUpdated, "", ParticipantsUpdated{Participants: []Participant{{SocketID: "s3"}}})
	assert.Eventually(t, func() bool {
		p := client.Participants()
		return len(p) == 1 && p[0].SocketID == "s3"
	}, time.Second, 5*time.Millisecond)

	// drop the transport: roster clears, reconnect re-requests it
	first.Close()
	second.expect(t, EventGetParticipants)
	assert.Empty(t, client.Participants())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, rosters)
	assert.Nil(t, rosters[len(rosters)-1])
}

func TestClient_Heartbeat(t *testing.T) {
	conn := newMemConn()
	client := NewClient(newMemDialer(conn), nil, Config{
		Identity:          Identity{DiagramID: "7"},
		HeartbeatInterval: 10 * time.Millisecond,
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	conn.expect(t, EventGetParticipants)
	env := conn.expect(t, EventHeartbeat)
	var ref DiagramRef
	require.NoError(t, env.Decode(&ref))
	assert.Equal(t, "7", ref.DiagramID)
	conn.expect(t, EventHeartbeat)
}

func TestClient_ChatGeneratesDiagram(t *testing.T) {
	conn := newMemConn()
	store := &recordingStore{}
	client, _ := startClient(t, "42", store, conn)
	conn.expect(t, EventGetParticipants)

	type outcome struct {
		reply ChatReply
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		reply, err := client.SendChat(context.Background(), "genera un diagrama de usuarios y pedidos")
		done <- outcome{reply, err}
	}()

	env := conn.expect(t, EventGenerateDiagram)
	var req GenerateDiagramRequest
	require.NoError(t, env.Decode(&req))
	assert.Equal(t, "genera un diagrama de usuarios y pedidos", req.Prompt)
	assert.Equal(t, "42", req.DiagramID)
	assert.NotEmpty(t, env.CorrelationID)
	assert.Eventually(t, func() bool { return client.Generating() == 1 }, time.Second, 5*time.Millisecond)

	model := classModel("Usuario", "Pedido")
	conn.push(t, EventDiagramGenerated, env.CorrelationID, DiagramGenerated{Success: true, Diagram: &model})

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, IntentGenerate, got.reply.Intent)
	require.NotNil(t, got.reply.Diagram)
	assert.Len(t, got.reply.Diagram.Nodes, 2)
	assert.Equal(t, 1, store.count())
	assert.Equal(t, 0, client.Generating())
	assert.Equal(t, 0, client.PendingRequests())
}

func TestClient_ChatConverses(t *testing.T) {
	conn := newMemConn()
	store := &recordingStore{}
	client, _ := startClient(t, "42", store, conn)
	conn.expect(t, EventGetParticipants)

	done := make(chan ChatReply, 1)
	go func() {
		reply, err := client.SendChat(context.Background(), "hola, ¿cómo estás?")
		assert.NoError(t, err)
		done <- reply
	}()

	env := conn.expect(t, EventGenerateAgent)
	var req GenerateAgentRequest
	require.NoError(t, env.Decode(&req))
	assert.Equal(t, "hola, ¿cómo estás?", req.Prompt)

	// uncorrelated replies go to the newest matching request
	conn.push(t, EventAgentGenerated, "", AgentGenerated{Text: "¡Bien!"})

	reply := <-done
	assert.Equal(t, IntentConverse, reply.Intent)
	assert.Equal(t, "¡Bien!", reply.Text)
	assert.Equal(t, 0, store.count())
}

func TestClient_GenerationFailureLeavesDiagram(t *testing.T) {
	conn := newMemConn()
	store := &recordingStore{}
	client, _ := startClient(t, "42", store, conn)
	conn.expect(t, EventGetParticipants)

	errs := make(chan error, 1)
	go func() {
		_, err := client.ProcessImage(context.Background(), "pizarra.PNG", []byte{0x89, 'P', 'N', 'G'})
		errs <- err
	}()

	env := conn.expect(t, EventProcessDiagramImage)
	var req ProcessDiagramImage
	require.NoError(t, env.Decode(&req))
	assert.Equal(t, "data:image/png;base64,iVBORw==", req.Image)
	assert.Equal(t, "pizarra.PNG", req.FileName)

	conn.push(t, EventDiagramImageProcessed, env.CorrelationID, DiagramImageProcessed{Success: false, Error: "no se reconoce"})

	err := <-errs
	require.Error(t, err)
	assert.True(t, pkgerrors.IsGeneration(err))
	assert.Contains(t, err.Error(), "no se reconoce")
	assert.Equal(t, 0, store.count())
}

func TestClient_ImageTypeRejectedLocally(t *testing.T) {
	conn := newMemConn()
	client, _ := startClient(t, "42", nil, conn)
	conn.expect(t, EventGetParticipants)

	_, err := client.ProcessImage(context.Background(), "diagram.gif", []byte("GIF89a"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Empty(t, conn.fromClient)
}

func TestClient_DisconnectFailsPending(t *testing.T) {
	conn := newMemConn()
	client, _ := startClient(t, "42", nil, conn)
	conn.expect(t, EventGetParticipants)

	errs := make(chan error, 1)
	go func() {
		_, err := client.SendChat(context.Background(), "hola")
		errs <- err
	}()
	conn.expect(t, EventGenerateAgent)
	conn.Close()

	err := <-errs
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.True(t, pkgerrors.IsTransport(err))
}

func TestClient_RequestWhileOffline(t *testing.T) {
	client := NewClient(newMemDialer(), nil, Config{Identity: Identity{DiagramID: "1"}}, nil)
	_, err := client.SendChat(context.Background(), "hola")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_RemoteDiagramUpdate(t *testing.T) {
	conn := newMemConn()
	store := &recordingStore{}
	_, _ = startClient(t, "42", store, conn)
	conn.expect(t, EventGetParticipants)

	conn.push(t, EventDiagramUpdated, "", DiagramUpdated{Diagram: classModel("Factura")})
	assert.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestInviteSession_SecondRequestWins(t *testing.T) {
	conn := newMemConn()
	client, _ := startClient(t, "42", nil, conn)
	conn.expect(t, EventGetParticipants)
	session := client.NewInviteSession()

	firstErr := make(chan error, 1)
	go func() {
		_, err := session.Generate(context.Background())
		firstErr <- err
	}()
	first := conn.expect(t, EventGenerateInvite)

	secondTok := make(chan string, 1)
	go func() {
		tok, err := session.Generate(context.Background())
		assert.NoError(t, err)
		secondTok <- tok
	}()
	second := conn.expect(t, EventGenerateInvite)
	assert.NotEqual(t, first.CorrelationID, second.CorrelationID)

	err := <-firstErr
	assert.True(t, IsSuperseded(err))
	assert.Equal(t, 1, client.PendingRequests(), "only the newest request is listening")

	// the late first reply is dropped
	conn.push(t, EventInviteCreated, first.CorrelationID, InviteCreated{Token: "stale"})
	conn.push(t, EventInviteCreated, second.CorrelationID, InviteCreated{Token: "fresh"})

	assert.Equal(t, "fresh", <-secondTok)
	assert.Equal(t, "fresh", session.Token())
	assert.Equal(t, 0, client.PendingRequests())
}

func TestInviteSession_ServerError(t *testing.T) {
	conn := newMemConn()
	client, _ := startClient(t, "42", nil, conn)
	conn.expect(t, EventGetParticipants)
	session := client.NewInviteSession()

	errs := make(chan error, 1)
	go func() {
		_, err := session.Generate(context.Background())
		errs <- err
	}()
	req := conn.expect(t, EventGenerateInvite)
	conn.push(t, EventError, req.CorrelationID, ErrorPayload{Error: "diagram 42 not found"})

	err := <-errs
	assert.True(t, pkgerrors.IsRemote(err))
	assert.Empty(t, session.Token())
}
