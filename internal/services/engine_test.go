package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"whatsapp-router/internal/models"
	"whatsapp-router/internal/notifier"
)

func inbound(t *testing.T, f *fixture, phone, content string) *InboundResult {
	t.Helper()
	res, err := f.engine.HandleInbound(context.Background(), InboundEvent{FromPhone: phone, Content: content})
	if err != nil {
		t.Fatalf("HandleInbound(%q) error: %v", content, err)
	}
	return res
}

func expectCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if CodeOf(err) != code {
		t.Fatalf("expected %s error, got %s (%v)", code, CodeOf(err), err)
	}
}

func TestFirstInboundCreatesConversationAndSendsMenu(t *testing.T) {
	f := newFixture(EngineOptions{})

	res := inbound(t, f, "5511998765432", "oi")
	if !res.Created {
		t.Fatalf("expected conversation to be created")
	}
	if res.Conversation.State != models.StateWaitingDepartment {
		t.Fatalf("expected WAITING_DEPARTMENT, got %s", res.Conversation.State)
	}
	if res.Conversation.NormalizedPhone != "5511998765432" {
		t.Fatalf("unexpected phone %s", res.Conversation.NormalizedPhone)
	}
	if res.MenuMessage == nil || res.MenuMessage.MessageType != models.MessageTypeMenu {
		t.Fatalf("expected menu message, got %+v", res.MenuMessage)
	}
	if res.MenuMessage.DeliveryStatus != models.StatusSent || res.MenuMessage.ProviderMessageID == "" {
		t.Fatalf("expected sent menu with provider id, got %+v", res.MenuMessage)
	}
	if f.transport.sentCount() != 1 {
		t.Fatalf("expected one send, got %d", f.transport.sentCount())
	}

	view, err := f.engine.GetConversation(context.Background(), res.Conversation.ID)
	if err != nil {
		t.Fatalf("GetConversation error: %v", err)
	}
	if len(view.Messages) != 2 {
		t.Fatalf("expected inbound and menu messages, got %d", len(view.Messages))
	}
	if view.Messages[0].Direction != models.DirectionInbound || view.Messages[1].Direction != models.DirectionOutbound {
		t.Fatalf("unexpected message order %s, %s", view.Messages[0].Direction, view.Messages[1].Direction)
	}
	if !view.Messages[1].CreatedAt.After(view.Messages[0].CreatedAt) {
		t.Fatalf("expected strictly increasing createdAt")
	}
	outbound := 0
	for _, m := range view.Messages {
		if m.Direction == models.DirectionOutbound {
			outbound++
		}
	}
	if outbound != 1 {
		t.Fatalf("expected exactly one outbound message, got %d", outbound)
	}
}

func TestDepartmentSelectionMovesToConversing(t *testing.T) {
	f := newFixture(EngineOptions{})
	inbound(t, f, "5511998765432", "oi")

	res := inbound(t, f, "+55 (11) 99876-5432", "2")
	if res.Created {
		t.Fatalf("expected existing conversation")
	}
	conv := res.Conversation
	if conv.State != models.StateConversing {
		t.Fatalf("expected CONVERSING, got %s", conv.State)
	}
	if conv.SelectedDepartment == nil || *conv.SelectedDepartment != 20 {
		t.Fatalf("expected department 20, got %v", conv.SelectedDepartment)
	}
	if conv.AdminRef != nil {
		t.Fatalf("expected no assignment with two candidate operators, got %d", *conv.AdminRef)
	}
	if res.MenuMessage != nil {
		t.Fatalf("did not expect another menu")
	}
}

func TestSingleOperatorDepartmentIsAssigned(t *testing.T) {
	f := newFixture(EngineOptions{})
	inbound(t, f, "11998765432", "oi")
	res := inbound(t, f, "11998765432", "Financeiro")

	if res.Conversation.AdminRef == nil || *res.Conversation.AdminRef != 1 {
		t.Fatalf("expected admin 1, got %v", res.Conversation.AdminRef)
	}
}

func TestConversingInboundOnlyAppends(t *testing.T) {
	f := newFixture(EngineOptions{})
	inbound(t, f, "11998765432", "oi")
	first := inbound(t, f, "11998765432", "1")
	res := inbound(t, f, "11998765432", "quero segunda via")

	if res.Conversation.State != models.StateConversing {
		t.Fatalf("expected CONVERSING, got %s", res.Conversation.State)
	}
	if !res.Conversation.UpdatedAt.After(first.Conversation.UpdatedAt) {
		t.Fatalf("expected updatedAt to move forward")
	}
	if f.transport.sentCount() != 1 {
		t.Fatalf("expected only the initial menu to be sent, got %d", f.transport.sentCount())
	}
}

func TestInvalidSelectionResendsMenuUntilCap(t *testing.T) {
	f := newFixture(EngineOptions{MaxMenuRetries: 2})
	inbound(t, f, "11998765432", "oi")

	for i, input := range []string{"x", "y"} {
		res := inbound(t, f, "11998765432", input)
		if res.MenuMessage == nil {
			t.Fatalf("expected menu resend on attempt %d", i+1)
		}
		if res.Conversation.State != models.StateWaitingDepartment || res.Conversation.MenuAttempts != i+1 {
			t.Fatalf("unexpected conversation %+v", res.Conversation)
		}
	}

	res := inbound(t, f, "11998765432", "z")
	if res.MenuMessage != nil {
		t.Fatalf("did not expect menu beyond the cap")
	}
	if !res.Conversation.NeedsAttention || res.Conversation.State != models.StateWaitingDepartment {
		t.Fatalf("expected needs attention while waiting, got %+v", res.Conversation)
	}
	if f.transport.sentCount() != 3 {
		t.Fatalf("expected 3 menus, got %d", f.transport.sentCount())
	}

	res = inbound(t, f, "11998765432", "3")
	if res.Conversation.State != models.StateConversing || res.Conversation.NeedsAttention || res.Conversation.MenuAttempts != 0 {
		t.Fatalf("expected valid selection to clear attention, got %+v", res.Conversation)
	}
}

func TestInvalidPhoneIsRejectedBeforeMutation(t *testing.T) {
	f := newFixture(EngineOptions{})
	_, err := f.engine.HandleInbound(context.Background(), InboundEvent{FromPhone: "abc", Content: "oi"})
	expectCode(t, err, ErrorCodeInvalidPhone)
	if len(f.conversations.all()) != 0 {
		t.Fatalf("expected no conversations")
	}
}

func TestKnownClientIsLinked(t *testing.T) {
	f := newFixture(EngineOptions{})
	res := inbound(t, f, "11988887777", "oi")
	if res.Conversation.ClientRef == nil || *res.Conversation.ClientRef != 77 {
		t.Fatalf("expected client 77, got %v", res.Conversation.ClientRef)
	}
}

func TestDuplicateProviderEventIsIgnored(t *testing.T) {
	f := newFixture(EngineOptions{})
	evt := InboundEvent{FromPhone: "11998765432", Content: "oi", ProviderMessageID: "in-1"}

	first, err := f.engine.HandleInbound(context.Background(), evt)
	if err != nil {
		t.Fatalf("HandleInbound error: %v", err)
	}
	events := len(f.publisher.events)

	second, err := f.engine.HandleInbound(context.Background(), evt)
	if err != nil {
		t.Fatalf("HandleInbound error: %v", err)
	}
	if !second.Duplicate || second.Message.ID != first.Message.ID {
		t.Fatalf("expected duplicate of %s, got %+v", first.Message.ID, second)
	}
	if len(f.publisher.events) != events {
		t.Fatalf("duplicate published events")
	}
	view, _ := f.engine.GetConversation(context.Background(), first.Conversation.ID)
	if len(view.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(view.Messages))
	}
}

func TestConcurrentInboundCreatesOneConversation(t *testing.T) {
	f := newFixture(EngineOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.HandleInbound(context.Background(), InboundEvent{FromPhone: "11998765432", Content: "oi"}); err != nil {
				t.Errorf("HandleInbound error: %v", err)
			}
		}()
	}
	wg.Wait()

	if f.conversations.creates != 1 {
		t.Fatalf("expected one creation, got %d", f.conversations.creates)
	}
	live := 0
	for _, c := range f.conversations.all() {
		if c.IsLive() {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("expected one live conversation, got %d", live)
	}
	if f.engine.locks.Len() != 0 {
		t.Fatalf("expected lock map to drain, got %d", f.engine.locks.Len())
	}
}

func TestEndConversationRequiresAssignedOperator(t *testing.T) {
	f := newFixture(EngineOptions{})
	inbound(t, f, "11998765432", "oi")
	conv := inbound(t, f, "11998765432", "1").Conversation

	_, err := f.engine.EndConversation(context.Background(), conv.ID, 2)
	expectCode(t, err, ErrorCodePermissionDenied)

	stored, _ := f.conversations.GetByID(context.Background(), conv.ID)
	if stored.State != models.StateConversing {
		t.Fatalf("expected state unchanged, got %s", stored.State)
	}

	ended, err := f.engine.EndConversation(context.Background(), conv.ID, 1)
	if err != nil {
		t.Fatalf("EndConversation error: %v", err)
	}
	if ended.State != models.StateEnded || ended.EndedAt == nil {
		t.Fatalf("expected ENDED with endedAt, got %+v", ended)
	}

	view, _ := f.engine.GetConversation(context.Background(), conv.ID)
	last := view.Messages[len(view.Messages)-1]
	if last.Direction != models.DirectionSystem || last.Content != DefaultClosingMessage {
		t.Fatalf("expected closure system message, got %+v", last)
	}

	_, err = f.engine.EndConversation(context.Background(), conv.ID, 1)
	expectCode(t, err, ErrorCodeNotFound)
}

func TestEndUnassignedConversationIsDenied(t *testing.T) {
	f := newFixture(EngineOptions{})
	conv := inbound(t, f, "11998765432", "oi").Conversation

	_, err := f.engine.EndConversation(context.Background(), conv.ID, 9)
	expectCode(t, err, ErrorCodePermissionDenied)
}

func TestInboundAfterEndCreatesNewConversation(t *testing.T) {
	f := newFixture(EngineOptions{})
	inbound(t, f, "11998765432", "oi")
	old := inbound(t, f, "11998765432", "1").Conversation
	if _, err := f.engine.EndConversation(context.Background(), old.ID, 1); err != nil {
		t.Fatalf("EndConversation error: %v", err)
	}

	res := inbound(t, f, "11998765432", "oi de novo")
	if !res.Created || res.Conversation.ID == old.ID {
		t.Fatalf("expected a new conversation")
	}
	if res.Conversation.State != models.StateWaitingDepartment {
		t.Fatalf("expected WAITING_DEPARTMENT, got %s", res.Conversation.State)
	}

	stored, _ := f.conversations.GetByID(context.Background(), old.ID)
	if stored.State != models.StateEnded {
		t.Fatalf("ended conversation changed to %s", stored.State)
	}
}

func TestSendMessageSignsWithOperatorName(t *testing.T) {
	f := newFixture(EngineOptions{})
	inbound(t, f, "11998765432", "oi")
	conv := inbound(t, f, "11998765432", "1").Conversation

	msg, err := f.engine.SendMessage(context.Background(), conv.ID, "Olá, tudo bem?", models.IntPtr(1), false)
	if err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	if msg.Content != "Olá, tudo bem?" || msg.AdminRef == nil || *msg.AdminRef != 1 {
		t.Fatalf("unexpected stored message %+v", msg)
	}
	if got := f.transport.sent[len(f.transport.sent)-1].body; got != "*Ana*:\n\nOlá, tudo bem?" {
		t.Fatalf("unexpected wire body %q", got)
	}

	if _, err := f.engine.SendMessage(context.Background(), conv.ID, "anônimo", models.IntPtr(1), true); err != nil {
		t.Fatalf("SendMessage error: %v", err)
	}
	if got := f.transport.sent[len(f.transport.sent)-1].body; got != "anônimo" {
		t.Fatalf("unexpected anonymous body %q", got)
	}
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(EngineOptions{})
	conv := inbound(t, f, "11998765432", "oi").Conversation

	_, err := f.engine.SendMessage(context.Background(), conv.ID, "   ", nil, false)
	expectCode(t, err, ErrorCodeValidation)

	_, err = f.engine.SendMessage(context.Background(), "missing", "oi", nil, false)
	expectCode(t, err, ErrorCodeNotFound)
}

func TestTransportFailureIsRecorded(t *testing.T) {
	f := newFixture(EngineOptions{})
	f.transport.fail = true

	res := inbound(t, f, "11998765432", "oi")
	if res.Conversation.State != models.StateWaitingDepartment {
		t.Fatalf("failed menu must not revert transition, got %s", res.Conversation.State)
	}
	if res.MenuMessage == nil || res.MenuMessage.DeliveryStatus != models.StatusFailed {
		t.Fatalf("expected failed menu, got %+v", res.MenuMessage)
	}
	if res.MenuMessage.FailureReason == "" {
		t.Fatalf("expected failure reason")
	}

	msg, err := f.engine.SendMessage(context.Background(), res.Conversation.ID, "oi", nil, true)
	expectCode(t, err, ErrorCodeTransport)
	if msg == nil || msg.DeliveryStatus != models.StatusFailed {
		t.Fatalf("expected persisted failed message, got %+v", msg)
	}
}

type blockingTransport struct{}

func (blockingTransport) Send(ctx context.Context, to, body string) SendResult {
	<-ctx.Done()
	return SendResult{}
}

func (blockingTransport) Status(ctx context.Context, id string) (models.DeliveryStatus, error) {
	return "", ErrStatusUnknown
}

func TestSendTimeoutCountsAsFailure(t *testing.T) {
	f := newFixture(EngineOptions{SendTimeout: 20 * time.Millisecond})
	f.engine.transport = blockingTransport{}

	res := inbound(t, f, "11998765432", "oi")
	if res.MenuMessage.DeliveryStatus != models.StatusFailed || res.MenuMessage.FailureReason != "timeout" {
		t.Fatalf("expected timeout failure, got %+v", res.MenuMessage)
	}
}

func TestAssignAdminAndResendMenu(t *testing.T) {
	f := newFixture(EngineOptions{})
	conv := inbound(t, f, "11998765432", "oi").Conversation

	_, err := f.engine.AssignAdmin(context.Background(), conv.ID, 404)
	expectCode(t, err, ErrorCodeNotFound)

	assigned, err := f.engine.AssignAdmin(context.Background(), conv.ID, 2)
	if err != nil {
		t.Fatalf("AssignAdmin error: %v", err)
	}
	if assigned.AdminRef == nil || *assigned.AdminRef != 2 {
		t.Fatalf("expected admin 2, got %v", assigned.AdminRef)
	}

	before := f.transport.sentCount()
	if _, err := f.engine.ResendMenu(context.Background(), conv.ID); err != nil {
		t.Fatalf("ResendMenu error: %v", err)
	}
	if f.transport.sentCount() != before+1 {
		t.Fatalf("expected menu resend")
	}
	after, _ := f.conversations.GetByID(context.Background(), conv.ID)
	if after.State != assigned.State || !after.UpdatedAt.After(assigned.UpdatedAt) {
		t.Fatalf("expected same state and newer updatedAt, got %+v", after)
	}

	if _, err := f.engine.EndConversation(context.Background(), conv.ID, 2); err != nil {
		t.Fatalf("EndConversation error: %v", err)
	}
	_, err = f.engine.ResendMenu(context.Background(), conv.ID)
	expectCode(t, err, ErrorCodeNotFound)
}

func TestReceiptsMoveStatusForwardOnly(t *testing.T) {
	f := newFixture(EngineOptions{})
	res := inbound(t, f, "11998765432", "oi")
	pid := res.MenuMessage.ProviderMessageID

	msg, changed, err := f.engine.HandleReceipt(context.Background(), pid, "delivered")
	if err != nil || !changed || msg.DeliveryStatus != models.StatusDelivered {
		t.Fatalf("expected delivered, got %+v changed=%v err=%v", msg, changed, err)
	}

	msg, changed, err = f.engine.HandleReceipt(context.Background(), pid, "sent")
	if err != nil || changed || msg.DeliveryStatus != models.StatusDelivered {
		t.Fatalf("expected stale receipt to be ignored, got %+v changed=%v err=%v", msg, changed, err)
	}

	statusEvents := f.publisher.count(notifier.MessageStatus)
	if _, changed, _ = f.engine.HandleReceipt(context.Background(), pid, "read"); !changed {
		t.Fatalf("expected read to apply")
	}
	if f.publisher.count(notifier.MessageStatus) != statusEvents+1 {
		t.Fatalf("expected a status event")
	}

	if _, changed, _ = f.engine.HandleReceipt(context.Background(), pid, "failed"); changed {
		t.Fatalf("read is terminal")
	}

	_, _, err = f.engine.HandleReceipt(context.Background(), pid, "bogus")
	expectCode(t, err, ErrorCodeValidation)

	_, _, err = f.engine.HandleReceipt(context.Background(), "unknown", "read")
	expectCode(t, err, ErrorCodeNotFound)
}

func TestCloseIdleEndsStaleConversations(t *testing.T) {
	f := newFixture(EngineOptions{})
	stale := inbound(t, f, "11998765432", "oi").Conversation

	f.now = f.now.Add(2 * time.Hour)
	fresh := inbound(t, f, "21988887777", "oi").Conversation

	closed, err := f.engine.CloseIdle(context.Background(), f.now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CloseIdle error: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected 1 closed, got %d", closed)
	}

	got, _ := f.conversations.GetByID(context.Background(), stale.ID)
	if got.State != models.StateEnded || got.AdminRef != nil {
		t.Fatalf("expected stale conversation ended without operator, got %+v", got)
	}
	got, _ = f.conversations.GetByID(context.Background(), fresh.ID)
	if got.State != models.StateWaitingDepartment {
		t.Fatalf("fresh conversation changed to %s", got.State)
	}

	active, err := f.engine.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive error: %v", err)
	}
	if len(active) != 1 || active[0].ID != fresh.ID {
		t.Fatalf("unexpected active list %+v", active)
	}
}

func TestEventsCarryConversationOrder(t *testing.T) {
	f := newFixture(EngineOptions{})
	inbound(t, f, "11998765432", "oi")
	inbound(t, f, "11998765432", "2")

	var types []notifier.EventType
	for _, e := range f.publisher.events {
		types = append(types, e.Type)
	}
	want := []notifier.EventType{
		notifier.ConversationChanged, // created
		notifier.MessageAppended,     // "oi"
		notifier.ConversationChanged, // WAITING_DEPARTMENT
		notifier.MessageAppended,     // menu pending
		notifier.MessageStatus,       // menu sent
		notifier.MessageAppended,     // "2"
		notifier.ConversationChanged, // CONVERSING
	}
	if len(types) != len(want) {
		t.Fatalf("unexpected events %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d: got %s, want %s", i, types[i], want[i])
		}
	}
	last := f.publisher.events[len(f.publisher.events)-1]
	if last.DepartmentID == nil || *last.DepartmentID != 20 {
		t.Fatalf("expected department on event, got %v", last.DepartmentID)
	}
}
