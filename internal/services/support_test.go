package services

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"whatsapp-router/config"
	"whatsapp-router/internal/models"
	"whatsapp-router/internal/notifier"
)

type memorySupport struct {
	mu   sync.Mutex
	list []*models.SupportMessage
}

func (r *memorySupport) Save(ctx context.Context, m *models.SupportMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *m
	r.list = append(r.list, &copied)
	return nil
}

func (r *memorySupport) ListByClient(ctx context.Context, clientID int, limit int) ([]*models.SupportMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SupportMessage
	for _, m := range r.list {
		if m.ClientID == clientID {
			copied := *m
			out = append(out, &copied)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *memorySupport) MarkRead(ctx context.Context, clientID int, readerIsClient bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.list {
		if m.ClientID == clientID && m.FromClient != readerIsClient && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (r *memorySupport) UnreadCount(ctx context.Context, clientID int, readerIsClient bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.list {
		if m.ClientID == clientID && m.FromClient != readerIsClient && !m.Read {
			n++
		}
	}
	return n, nil
}

type fakeUploader struct {
	name        string
	contentType string
}

func (u *fakeUploader) Upload(ctx context.Context, data []byte, fileName, contentType string) (string, error) {
	u.name = fileName
	u.contentType = contentType
	return "https://cdn.example.com/" + fileName, nil
}

func newSupportFixture() (*SupportService, *memorySupport, *fakeUploader, *recordingPublisher) {
	repo := &memorySupport{}
	uploader := &fakeUploader{}
	pub := &recordingPublisher{}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewSupportService(repo, memoryClients{newDirectory()}, uploader, pub, func() time.Time { return now })
	return svc, repo, uploader, pub
}

func TestSupportSendAndUnread(t *testing.T) {
	svc, _, _, pub := newSupportFixture()
	ctx := context.Background()

	for _, text := range []string{"oi", "preciso de ajuda"} {
		_, err := svc.Send(ctx, models.SupportMessageRequest{ClientID: 77, FromClient: true, Content: models.TextContent(text)})
		if err != nil {
			t.Fatalf("Send error: %v", err)
		}
	}
	if _, err := svc.Send(ctx, models.SupportMessageRequest{ClientID: 77, AdminID: models.IntPtr(1), Content: models.TextContent("olá")}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if pub.count(notifier.SupportMessage) != 3 {
		t.Fatalf("expected 3 support events")
	}

	unread, err := svc.UnreadCount(ctx, 77, false)
	if err != nil || unread != 2 {
		t.Fatalf("expected 2 unread for operator, got %d (%v)", unread, err)
	}
	n, err := svc.MarkRead(ctx, 77, false)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 marked, got %d (%v)", n, err)
	}
	unread, _ = svc.UnreadCount(ctx, 77, true)
	if unread != 1 {
		t.Fatalf("expected 1 unread for client, got %d", unread)
	}

	list, err := svc.List(ctx, 77, 2)
	if err != nil || len(list) != 2 {
		t.Fatalf("expected 2 messages, got %d (%v)", len(list), err)
	}
	if !list[1].CreatedAt.After(list[0].CreatedAt) {
		t.Fatalf("expected increasing createdAt")
	}
}

func TestSupportSendValidation(t *testing.T) {
	svc, _, _, _ := newSupportFixture()
	ctx := context.Background()

	_, err := svc.Send(ctx, models.SupportMessageRequest{ClientID: 77, FromClient: true, Content: models.TextContent(" ")})
	expectCode(t, err, ErrorCodeValidation)

	_, err = svc.Send(ctx, models.SupportMessageRequest{ClientID: 77, Content: models.TextContent("oi")})
	expectCode(t, err, ErrorCodeValidation)

	_, err = svc.Send(ctx, models.SupportMessageRequest{ClientID: 404, FromClient: true, Content: models.TextContent("oi")})
	expectCode(t, err, ErrorCodeNotFound)

	_, err = svc.Send(ctx, models.SupportMessageRequest{ClientID: 77, FromClient: true, Content: models.MessageContent{
		Kind: models.ContentFile,
		File: &models.FileContent{URL: "boleto.pdf", Name: "boleto.pdf"},
	}})
	expectCode(t, err, ErrorCodeValidation)
}

func TestSupportUploadAttachmentKinds(t *testing.T) {
	svc, _, uploader, _ := newSupportFixture()
	ctx := context.Background()

	content, err := svc.UploadAttachment(ctx, []byte("OggS"), "nota.ogg", "audio/ogg")
	if err != nil {
		t.Fatalf("UploadAttachment error: %v", err)
	}
	if content.Kind != models.ContentAudio || content.Audio.URL != "https://cdn.example.com/nota.ogg" {
		t.Fatalf("unexpected audio content %+v", content)
	}

	content, err = svc.UploadAttachment(ctx, []byte("%PDF"), "boleto.pdf", "")
	if err != nil {
		t.Fatalf("UploadAttachment error: %v", err)
	}
	if content.Kind != models.ContentFile || content.File.Name != "boleto.pdf" || content.File.Size != 4 {
		t.Fatalf("unexpected file content %+v", content)
	}
	if uploader.contentType != "application/pdf" {
		t.Fatalf("expected guessed mime, got %s", uploader.contentType)
	}

	_, err = svc.UploadAttachment(ctx, nil, "vazio.txt", "text/plain")
	expectCode(t, err, ErrorCodeValidation)
}

type fakeS3 struct {
	s3iface.S3API
	input *s3.PutObjectInput
	body  string
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	f.input = in
	raw, _ := io.ReadAll(in.Body)
	f.body = string(raw)
	return &s3.PutObjectOutput{}, nil
}

func TestS3ServiceUpload(t *testing.T) {
	client := &fakeS3{}
	svc := NewS3ServiceWithClient(client, &config.S3Config{BucketName: "anexos", BucketURL: "https://cdn.example.com/", Prefix: "support"})
	svc.now = func() time.Time { return time.Unix(0, 42) }

	url, err := svc.Upload(context.Background(), []byte("conteudo"), "", "audio/ogg")
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if url != "https://cdn.example.com/support/42.ogg" {
		t.Fatalf("unexpected url %s", url)
	}
	if aws.StringValue(client.input.Bucket) != "anexos" || aws.StringValue(client.input.ContentType) != "audio/ogg" {
		t.Fatalf("unexpected input %+v", client.input)
	}
	if !strings.HasPrefix(aws.StringValue(client.input.Key), "support/") || client.body != "conteudo" {
		t.Fatalf("unexpected object %s %q", aws.StringValue(client.input.Key), client.body)
	}
}
