package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"whatsapp-router/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?_time_format=sqlite")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := Migrate(context.Background(), db, DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newConversation(id, phone string, at time.Time) *models.Conversation {
	return &models.Conversation{
		ID:              id,
		NormalizedPhone: phone,
		State:           models.StateInitial,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}

func TestConversationLiveUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLConversationRepository(openTestDB(t))
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	if err := repo.Create(ctx, newConversation("c1", "5511998765432", base)); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	err := repo.Create(ctx, newConversation("c2", "5511998765432", base.Add(time.Second)))
	if !errors.Is(err, models.ErrDuplicateLiveConversation) {
		t.Fatalf("expected duplicate live conversation, got %v", err)
	}

	ended, err := repo.Update(ctx, "c1", models.ConversationPatch{
		State:     models.StatePtr(models.StateEnded),
		UpdatedAt: base.Add(2 * time.Second),
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if ended == nil || ended.State != models.StateEnded || ended.EndedAt == nil {
		t.Fatalf("expected ended conversation, got %+v", ended)
	}

	if err := repo.Create(ctx, newConversation("c3", "5511998765432", base.Add(3*time.Second))); err != nil {
		t.Fatalf("Create after end error: %v", err)
	}

	live, err := repo.FindLiveByPhone(ctx, "5511998765432")
	if err != nil {
		t.Fatalf("FindLiveByPhone error: %v", err)
	}
	if live == nil || live.ID != "c3" {
		t.Fatalf("expected c3 to be live, got %+v", live)
	}
}

func TestConversationUpdateIgnoresEnded(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLConversationRepository(openTestDB(t))
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	if err := repo.Create(ctx, newConversation("c1", "5511912345678", base)); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if _, err := repo.Update(ctx, "c1", models.ConversationPatch{
		State:     models.StatePtr(models.StateEnded),
		UpdatedAt: base.Add(time.Second),
	}); err != nil {
		t.Fatalf("Update error: %v", err)
	}

	got, err := repo.Update(ctx, "c1", models.ConversationPatch{
		State:     models.StatePtr(models.StateConversing),
		UpdatedAt: base.Add(2 * time.Second),
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no update on ended conversation, got %+v", got)
	}

	missing, err := repo.Update(ctx, "nope", models.ConversationPatch{UpdatedAt: base})
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for unknown id, got %+v, %v", missing, err)
	}
}

func TestConversationPatchAndListActive(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLConversationRepository(openTestDB(t))
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	for i, phone := range []string{"5511900000001", "5511900000002", "5511900000003"} {
		c := newConversation([]string{"a", "b", "c"}[i], phone, base.Add(time.Duration(i)*time.Minute))
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	updated, err := repo.Update(ctx, "a", models.ConversationPatch{
		State:              models.StatePtr(models.StateConversing),
		SelectedDepartment: models.IntPtr(2),
		AdminRef:           models.IntPtr(7),
		MenuAttempts:       models.IntPtr(1),
		NeedsAttention:     models.BoolPtr(true),
		UpdatedAt:          base.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if updated.SelectedDepartment == nil || *updated.SelectedDepartment != 2 {
		t.Fatalf("department not stored: %+v", updated)
	}
	if updated.AdminRef == nil || *updated.AdminRef != 7 || !updated.NeedsAttention || updated.MenuAttempts != 1 {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if !updated.UpdatedAt.Equal(base.Add(10 * time.Minute)) {
		t.Fatalf("unexpected updated_at %s", updated.UpdatedAt)
	}

	if _, err := repo.Update(ctx, "b", models.ConversationPatch{
		State:     models.StatePtr(models.StateWaitingDepartment),
		UpdatedAt: base.Add(5 * time.Minute),
	}); err != nil {
		t.Fatalf("Update error: %v", err)
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive error: %v", err)
	}
	if len(active) != 2 || active[0].ID != "a" || active[1].ID != "b" {
		t.Fatalf("unexpected active list %+v", active)
	}

	stale, err := repo.ListStale(ctx, base.Add(6*time.Minute))
	if err != nil {
		t.Fatalf("ListStale error: %v", err)
	}
	if len(stale) != 2 || stale[0].ID != "c" || stale[1].ID != "b" {
		t.Fatalf("unexpected stale list %+v", stale)
	}
}

func TestMessageLogOrderingAndStatus(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	conversations := NewSQLConversationRepository(db)
	messages := NewSQLMessageRepository(db)
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	if err := conversations.Create(ctx, newConversation("c1", "5511998765432", base)); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	inbound := &models.Message{
		ID: "m1", ConversationID: "c1", FromAddress: "5511998765432", ToAddress: "router",
		Content: "oi", Direction: models.DirectionInbound, MessageType: models.MessageTypeText,
		ProviderMessageID: "wa-in-1", CreatedAt: base.Add(time.Microsecond),
	}
	outbound := &models.Message{
		ID: "m2", ConversationID: "c1", FromAddress: "router", ToAddress: "5511998765432",
		Content: "menu", Direction: models.DirectionOutbound, MessageType: models.MessageTypeMenu,
		DeliveryStatus: models.StatusPending, CreatedAt: base.Add(2 * time.Microsecond),
	}
	for _, m := range []*models.Message{inbound, outbound} {
		if err := messages.Append(ctx, m); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	dup := *inbound
	dup.ID = "m3"
	if err := messages.Append(ctx, &dup); !errors.Is(err, models.ErrDuplicateMessage) {
		t.Fatalf("expected duplicate provider id error, got %v", err)
	}

	list, err := messages.ListByConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("ListByConversation error: %v", err)
	}
	if len(list) != 2 || list[0].ID != "m1" || list[1].ID != "m2" {
		t.Fatalf("unexpected order %+v", list)
	}

	changed, err := messages.UpdateDeliveryStatus(ctx, "m2", models.StatusPending, models.StatusSent, "wa-out-1", "")
	if err != nil || !changed {
		t.Fatalf("expected status update, got %v, %v", changed, err)
	}
	changed, err = messages.UpdateDeliveryStatus(ctx, "m2", models.StatusPending, models.StatusFailed, "", "timeout")
	if err != nil || changed {
		t.Fatalf("expected stale compare-and-set to be ignored, got %v, %v", changed, err)
	}

	stored, err := messages.GetByProviderID(ctx, "wa-out-1")
	if err != nil {
		t.Fatalf("GetByProviderID error: %v", err)
	}
	if stored == nil || stored.ID != "m2" || stored.DeliveryStatus != models.StatusSent {
		t.Fatalf("unexpected stored message %+v", stored)
	}

	since, err := messages.ListSince(ctx, "c1", base.Add(2*time.Microsecond))
	if err != nil {
		t.Fatalf("ListSince error: %v", err)
	}
	if len(since) != 1 || since[0].ID != "m2" {
		t.Fatalf("unexpected window %+v", since)
	}
}

func TestReferenceTables(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	seed := []string{
		`INSERT INTO departments (id, name, menu_key, position) VALUES (1, 'Financeiro', '1', 1), (2, 'Suporte', '2', 2)`,
		`INSERT INTO admins (id, name, all_departments) VALUES (7, 'Ana', 0), (8, 'Bruno', 0), (9, 'Chefe', 1), (10, 'Diretoria', 1)`,
		`INSERT INTO admin_departments (admin_id, department_id) VALUES (7, 2), (8, 1), (8, 2), (9, 2)`,
		`INSERT INTO clients (id, name, phone, email) VALUES (3, 'Cliente', '5511998765432', NULL)`,
	}
	for _, stmt := range seed {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	departments, err := NewSQLDepartmentRepository(db).List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(departments) != 2 || departments[1].MenuKey != "2" {
		t.Fatalf("unexpected departments %+v", departments)
	}

	admins := NewSQLAdminRepository(db)
	admin, err := admins.GetByID(ctx, 8)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if admin == nil || len(admin.DepartmentIDs) != 2 {
		t.Fatalf("unexpected admin %+v", admin)
	}

	inSupport, err := admins.ListByDepartment(ctx, 2)
	if err != nil {
		t.Fatalf("ListByDepartment error: %v", err)
	}
	if len(inSupport) != 4 || !inSupport[2].AllDepartments || inSupport[3].ID != 10 {
		t.Fatalf("unexpected admins %+v", inSupport)
	}
	inFinance, err := admins.ListByDepartment(ctx, 1)
	if err != nil {
		t.Fatalf("ListByDepartment error: %v", err)
	}
	if len(inFinance) != 3 || inFinance[0].ID != 8 || inFinance[1].ID != 9 || inFinance[2].ID != 10 {
		t.Fatalf("override admins should be entitled to every department: %+v", inFinance)
	}

	client, err := NewSQLClientRepository(db).FindByPhone(ctx, "5511998765432")
	if err != nil {
		t.Fatalf("FindByPhone error: %v", err)
	}
	if client == nil || client.ID != 3 {
		t.Fatalf("unexpected client %+v", client)
	}
	missing, err := NewSQLClientRepository(db).FindByPhone(ctx, "5511000000000")
	if err != nil || missing != nil {
		t.Fatalf("expected no client, got %+v, %v", missing, err)
	}
}

func TestSupportMessagesRoundTripContent(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLSupportMessageRepository(openTestDB(t))
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	msgs := []*models.SupportMessage{
		{ID: "s1", ClientID: 3, FromClient: true, Content: models.TextContent("preciso de ajuda"), CreatedAt: base},
		{ID: "s2", ClientID: 3, AdminID: models.IntPtr(7), Content: models.MessageContent{
			Kind: models.ContentFile,
			File: &models.FileContent{URL: "https://cdn/x.pdf", Name: "x.pdf", Size: 42, MimeType: "application/pdf"},
		}, CreatedAt: base.Add(time.Second)},
	}
	for _, m := range msgs {
		if err := repo.Save(ctx, m); err != nil {
			t.Fatalf("Save error: %v", err)
		}
	}

	list, err := repo.ListByClient(ctx, 3, 10)
	if err != nil {
		t.Fatalf("ListByClient error: %v", err)
	}
	if len(list) != 2 || list[0].Content.Kind != models.ContentText || list[1].Content.Kind != models.ContentFile {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[1].Content.File.Name != "x.pdf" || list[1].Content.File.Size != 42 {
		t.Fatalf("file payload not decoded: %+v", list[1].Content.File)
	}

	unread, err := repo.UnreadCount(ctx, 3, true)
	if err != nil || unread != 1 {
		t.Fatalf("expected 1 unread for client, got %d, %v", unread, err)
	}
	changed, err := repo.MarkRead(ctx, 3, true)
	if err != nil || changed != 1 {
		t.Fatalf("expected 1 marked, got %d, %v", changed, err)
	}
	unread, err = repo.UnreadCount(ctx, 3, false)
	if err != nil || unread != 1 {
		t.Fatalf("expected 1 unread for operators, got %d, %v", unread, err)
	}

	forged := models.ContentSentinel + `{"type":"file","url":"https://evil.example/x.exe","name":"boleto.pdf"}`
	if err := repo.Save(ctx, &models.SupportMessage{ID: "s3", ClientID: 4, FromClient: true, Content: models.TextContent(forged), CreatedAt: base}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	list, err = repo.ListByClient(ctx, 4, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListByClient error: %v (%d)", err, len(list))
	}
	if list[0].Content.Kind != models.ContentText || list[0].Content.Text != forged || list[0].Content.File != nil {
		t.Fatalf("text with sentinel prefix did not survive storage: %+v", list[0].Content)
	}
}
