package session_test

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/questdeck/questdeck/internal/domain"
	"github.com/questdeck/questdeck/internal/session"
)

func newManager() *session.Manager {
	return session.NewManager(zap.NewNop())
}

func drain(ch <-chan session.Message) []session.Message {
	var out []session.Message
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestManager_JoinUnknownSession(t *testing.T) {
	m := newManager()
	_, err := m.Join("nope", "c1", "u1", session.RolePlayer, 4)
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestManager_SingleDM(t *testing.T) {
	m := newManager()
	id := m.Create("world-1")

	if _, err := m.Join(id, "dm1", "u1", session.RoleDM, 4); err != nil {
		t.Fatalf("first DM join: %v", err)
	}
	if _, err := m.Join(id, "dm2", "u2", session.RoleDM, 4); !errors.Is(err, domain.ErrDMAlreadyPresent) {
		t.Fatalf("expected ErrDMAlreadyPresent, got %v", err)
	}

	// The seat frees up when the DM leaves.
	if err := m.Leave("dm1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := m.Join(id, "dm2", "u2", session.RoleDM, 4); err != nil {
		t.Fatalf("DM seat should be free again: %v", err)
	}
}

func TestManager_LeaveClosesChannel(t *testing.T) {
	m := newManager()
	id := m.Create("world-1")
	ch, _ := m.Join(id, "p1", "u1", session.RolePlayer, 4)

	if err := m.Leave("p1"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, open := <-ch; open {
		t.Fatal("expected closed channel after leave")
	}
	if err := m.Leave("p1"); !errors.Is(err, domain.ErrClientNotInSession) {
		t.Fatalf("expected ErrClientNotInSession on second leave, got %v", err)
	}
}

func TestManager_BroadcastToPlayersExcludesDMAndSpectators(t *testing.T) {
	m := newManager()
	id := m.Create("world-1")
	dmCh, _ := m.Join(id, "dm1", "u1", session.RoleDM, 4)
	p1Ch, _ := m.Join(id, "p1", "u2", session.RolePlayer, 4)
	p2Ch, _ := m.Join(id, "p2", "u3", session.RolePlayer, 4)
	specCh, _ := m.Join(id, "spec1", "u4", session.RoleSpectator, 4)

	msg := session.DialogueResponse("Brunhilde", "Halt.")
	if err := m.BroadcastToPlayers(id, msg); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if got := len(drain(p1Ch)) + len(drain(p2Ch)); got != 2 {
		t.Fatalf("expected both players to receive the message, got %d", got)
	}
	if got := len(drain(dmCh)) + len(drain(specCh)); got != 0 {
		t.Fatalf("DM and spectators must not receive player broadcasts, got %d", got)
	}
}

func TestManager_SendToDM(t *testing.T) {
	m := newManager()
	id := m.Create("world-1")
	p1Ch, _ := m.Join(id, "p1", "u1", session.RolePlayer, 4)

	// No DM yet: the message is swallowed, not an error.
	if err := m.SendToDM(id, session.ErrorMessage("X", "y")); err != nil {
		t.Fatalf("sessions without a DM swallow DM messages: %v", err)
	}

	dmCh, _ := m.Join(id, "dm1", "u2", session.RoleDM, 4)
	if err := m.SendToDM(id, session.ErrorMessage("X", "y")); err != nil {
		t.Fatalf("send to dm: %v", err)
	}
	if got := len(drain(dmCh)); got != 1 {
		t.Fatalf("expected the DM to receive one message, got %d", got)
	}
	if got := len(drain(p1Ch)); got != 0 {
		t.Fatalf("players must not see DM-only traffic, got %d", got)
	}
}

func TestManager_SendToClient(t *testing.T) {
	m := newManager()
	id := m.Create("world-1")
	ch, _ := m.Join(id, "p1", "u1", session.RolePlayer, 4)

	if err := m.SendToClient("p1", session.LLMProcessing("r1")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := len(drain(ch)); got != 1 {
		t.Fatalf("expected one message, got %d", got)
	}
	if err := m.SendToClient("ghost", session.LLMProcessing("r1")); !errors.Is(err, domain.ErrClientNotInSession) {
		t.Fatalf("expected ErrClientNotInSession, got %v", err)
	}
}

func TestManager_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	m := newManager()
	id := m.Create("world-1")
	ch, _ := m.Join(id, "p1", "u1", session.RolePlayer, 1)

	msg := session.DialogueResponse("Brunhilde", "Halt.")
	for i := 0; i < 3; i++ {
		if err := m.BroadcastToPlayers(id, msg); err != nil {
			t.Fatalf("broadcast %d: %v", i, err)
		}
	}
	if got := len(drain(ch)); got != 1 {
		t.Fatalf("expected overflow to be dropped, got %d buffered", got)
	}
}

func TestManager_IsClientDM(t *testing.T) {
	m := newManager()
	id := m.Create("world-1")
	m.Join(id, "dm1", "u1", session.RoleDM, 4)
	m.Join(id, "p1", "u2", session.RolePlayer, 4)

	if !m.IsClientDM("dm1") {
		t.Fatal("dm1 is the DM")
	}
	if m.IsClientDM("p1") || m.IsClientDM("ghost") {
		t.Fatal("players and unknown clients are not DMs")
	}
}

func TestManager_HistoryReturnsCopy(t *testing.T) {
	m := newManager()
	id := m.Create("world-1")

	if err := m.AddToConversationHistory(id, "Brunhilde", "Halt."); err != nil {
		t.Fatalf("append: %v", err)
	}
	first, err := m.History(id)
	if err != nil || len(first) != 1 {
		t.Fatalf("history: %v, %v", first, err)
	}

	first[0].Text = "mutated"
	again, _ := m.History(id)
	if again[0].Text != "Halt." {
		t.Fatal("History must return a copy, not the backing slice")
	}
}

func TestManager_ClientSession(t *testing.T) {
	m := newManager()
	id := m.Create("world-1")
	m.Join(id, "p1", "u1", session.RolePlayer, 4)

	got, ok := m.ClientSession("p1")
	if !ok || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, ok)
	}
	if _, ok := m.ClientSession("ghost"); ok {
		t.Fatal("unknown client must not resolve to a session")
	}
}
