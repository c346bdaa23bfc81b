package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"whatsapp-router/internal/models"
	"whatsapp-router/internal/notifier"
	"whatsapp-router/internal/utils"
)

const (
	DefaultSupportPageSize = 50
	maxAttachmentSize      = 16 << 20
)

// SupportService handles direct operator/client messages that do not go
// through the provider channel.
type SupportService struct {
	repo      models.SupportMessageRepository
	clients   models.ClientRepository
	uploader  Uploader
	publisher notifier.Publisher
	clock     *MonotonicClock
	newID     func() string
}

func NewSupportService(repo models.SupportMessageRepository, clients models.ClientRepository, uploader Uploader, publisher notifier.Publisher, now func() time.Time) *SupportService {
	if publisher == nil {
		publisher = discardPublisher{}
	}
	return &SupportService{
		repo:      repo,
		clients:   clients,
		uploader:  uploader,
		publisher: publisher,
		clock:     NewMonotonicClock(now),
		newID:     uuid.NewString,
	}
}

func (s *SupportService) Send(ctx context.Context, req models.SupportMessageRequest) (*models.SupportMessage, error) {
	if req.ClientID <= 0 {
		return nil, newError(ErrorCodeValidation, "Cliente não informado", nil)
	}
	if !req.FromClient && req.AdminID == nil {
		return nil, newError(ErrorCodeValidation, "Atendente não informado", nil)
	}
	if err := req.Content.Validate(); err != nil {
		return nil, newError(ErrorCodeValidation, "Conteúdo inválido", err)
	}
	if url := attachmentURL(req.Content); url != "" && !utils.IsURL(url) {
		return nil, newError(ErrorCodeValidation, "URL do anexo inválida", nil)
	}
	if err := s.requireClient(ctx, req.ClientID); err != nil {
		return nil, err
	}

	msg := &models.SupportMessage{
		ID:         s.newID(),
		ClientID:   req.ClientID,
		AdminID:    req.AdminID,
		FromClient: req.FromClient,
		Content:    req.Content,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.Save(ctx, msg); err != nil {
		utils.LogError("Erro ao salvar mensagem de suporte do cliente %d: %v", req.ClientID, err)
		return nil, newError(ErrorCodeInternal, "Erro ao salvar mensagem", err)
	}
	s.publisher.Publish(notifier.NewSupportEvent(msg))
	return msg, nil
}

func (s *SupportService) List(ctx context.Context, clientID, limit int) ([]*models.SupportMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = DefaultSupportPageSize
	}
	if err := s.requireClient(ctx, clientID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListByClient(ctx, clientID, limit)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "Erro ao listar mensagens", err)
	}
	if list == nil {
		list = []*models.SupportMessage{}
	}
	return list, nil
}

func (s *SupportService) MarkRead(ctx context.Context, clientID int, readerIsClient bool) (int64, error) {
	if err := s.requireClient(ctx, clientID); err != nil {
		return 0, err
	}
	n, err := s.repo.MarkRead(ctx, clientID, readerIsClient)
	if err != nil {
		return 0, newError(ErrorCodeInternal, "Erro ao marcar mensagens como lidas", err)
	}
	return n, nil
}

func (s *SupportService) UnreadCount(ctx context.Context, clientID int, readerIsClient bool) (int, error) {
	n, err := s.repo.UnreadCount(ctx, clientID, readerIsClient)
	if err != nil {
		return 0, newError(ErrorCodeInternal, "Erro ao contar mensagens", err)
	}
	return n, nil
}

// UploadAttachment stores an attachment and returns the content to send:
// audio for audio/* types, file otherwise.
func (s *SupportService) UploadAttachment(ctx context.Context, data []byte, fileName, contentType string) (models.MessageContent, error) {
	if s.uploader == nil {
		return models.MessageContent{}, newError(ErrorCodeValidation, "Armazenamento de arquivos não configurado", nil)
	}
	if len(data) == 0 {
		return models.MessageContent{}, newError(ErrorCodeValidation, "Arquivo vazio", nil)
	}
	if len(data) > maxAttachmentSize {
		return models.MessageContent{}, newError(ErrorCodeValidation, "Arquivo muito grande", nil)
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = utils.MimeFromFileName(fileName)
	}

	url, err := s.uploader.Upload(ctx, data, fileName, contentType)
	if err != nil {
		utils.LogError("Erro ao enviar arquivo %s: %v", fileName, err)
		return models.MessageContent{}, newError(ErrorCodeInternal, "Erro ao enviar arquivo", err)
	}

	if utils.IsAudioMime(contentType) {
		return models.MessageContent{
			Kind:  models.ContentAudio,
			Audio: &models.AudioContent{URL: url, MimeType: contentType},
		}, nil
	}
	return models.MessageContent{
		Kind: models.ContentFile,
		File: &models.FileContent{URL: url, Name: fileName, Size: int64(len(data)), MimeType: contentType},
	}, nil
}

func attachmentURL(c models.MessageContent) string {
	switch {
	case c.Kind == models.ContentFile && c.File != nil:
		return c.File.URL
	case c.Kind == models.ContentAudio && c.Audio != nil:
		return c.Audio.URL
	}
	return ""
}

func (s *SupportService) requireClient(ctx context.Context, clientID int) error {
	if s.clients == nil {
		return nil
	}
	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		return newError(ErrorCodeInternal, "Erro ao buscar cliente", err)
	}
	if client == nil {
		return newError(ErrorCodeNotFound, "Cliente não encontrado", nil)
	}
	return nil
}
