package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"whatsapp-router/internal/models"
	"whatsapp-router/internal/utils"
)

const receiptCacheSize = 10000

// InboundHandler receives contact messages from the provider.
type InboundHandler func(ctx context.Context, evt InboundEvent)

// ReceiptHandler receives delivery receipts for sent messages.
type ReceiptHandler func(ctx context.Context, providerMessageID string, status models.DeliveryStatus)

// WhatsAppTransport sends and receives through a paired WhatsApp Web
// session. Receipts seen on the session answer Status queries.
type WhatsAppTransport struct {
	client     *whatsmeow.Client
	clientMu   sync.RWMutex
	manager    *ConnectionManager
	dbPath     string
	deviceName string
	log        zerolog.Logger

	handlersMu sync.RWMutex
	onInbound  InboundHandler
	onReceipt  ReceiptHandler

	receiptsMu sync.Mutex
	receipts   map[string]models.DeliveryStatus
	order      []string
}

func NewWhatsAppTransport(sessionFile, deviceName string, manager *ConnectionManager) *WhatsAppTransport {
	if deviceName == "" {
		deviceName = "WhatsApp Router"
	}
	return &WhatsAppTransport{
		manager:    manager,
		dbPath:     sessionFile,
		deviceName: deviceName,
		log:        utils.Component("whatsapp"),
		receipts:   make(map[string]models.DeliveryStatus),
	}
}

// SetHandlers wires provider events into the engine.
func (s *WhatsAppTransport) SetHandlers(inbound InboundHandler, receipt ReceiptHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.onInbound = inbound
	s.onReceipt = receipt
}

// Connect opens the device store, restores the paired device if there is
// one and otherwise publishes pairing QR codes to the connection manager.
func (s *WhatsAppTransport) Connect(ctx context.Context) error {
	// Nome e plataforma exibidos em Aparelhos Conectados
	store.DeviceProps.Os = proto.String(s.deviceName)
	store.DeviceProps.PlatformType = waProto.DeviceProps_DESKTOP.Enum()

	if dir := filepath.Dir(s.dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("erro ao criar diretório para banco de dados: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)", s.dbPath)
	container, err := sqlstore.New("sqlite", dsn, waLog.Zerolog(s.log.With().Str("sub", "store").Logger()))
	if err != nil {
		return fmt.Errorf("erro ao criar device store: %w", err)
	}
	device, err := container.GetFirstDevice()
	if err != nil {
		return fmt.Errorf("erro ao carregar dispositivo: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Zerolog(s.log.With().Str("sub", "client").Logger()))
	client.AddEventHandler(s.handleEvent)

	s.clientMu.Lock()
	s.client = client
	s.clientMu.Unlock()

	if client.Store.ID == nil {
		s.log.Info().Msg("dispositivo não pareado, gerando QR code")
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("erro ao obter canal de QR code: %w", err)
		}
		go s.watchQR(qrChan)
	}

	if err := client.Connect(); err != nil {
		s.manager.SetDisconnected(err.Error())
		return fmt.Errorf("erro ao conectar: %w", err)
	}
	return nil
}

func (s *WhatsAppTransport) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			if err := s.manager.UpdateQRCode(evt.Code); err != nil {
				s.log.Error().Err(err).Msg("erro ao salvar QR code")
			}
		case "success":
			s.log.Info().Msg("pareamento concluído")
		default:
			s.log.Warn().Str("event", evt.Event).Msg("pareamento encerrado")
		}
	}
}

func (s *WhatsAppTransport) Disconnect() {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	if s.client != nil {
		s.client.Disconnect()
	}
}

func (s *WhatsAppTransport) IsConnected() bool {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return s.client != nil && s.client.IsConnected() && s.client.IsLoggedIn()
}

func (s *WhatsAppTransport) Send(ctx context.Context, to string, body string) SendResult {
	s.clientMu.RLock()
	client := s.client
	s.clientMu.RUnlock()
	if client == nil {
		return SendResult{Error: "whatsapp client not initialized"}
	}

	jid, err := utils.ParseJID(to)
	if err != nil {
		return SendResult{Error: err.Error()}
	}

	resp, err := client.SendMessage(ctx, jid, &waProto.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		if strings.Contains(err.Error(), "server returned error 479") {
			return SendResult{Error: "erro de conexão com WhatsApp (479)"}
		}
		return SendResult{Error: err.Error()}
	}

	s.rememberStatus(resp.ID, models.StatusSent)
	return SendResult{Success: true, ProviderMessageID: resp.ID}
}

// Status answers from receipts observed on this session.
func (s *WhatsAppTransport) Status(ctx context.Context, providerMessageID string) (models.DeliveryStatus, error) {
	s.receiptsMu.Lock()
	defer s.receiptsMu.Unlock()
	status, ok := s.receipts[providerMessageID]
	if !ok {
		return "", ErrStatusUnknown
	}
	return status, nil
}

func (s *WhatsAppTransport) rememberStatus(id string, status models.DeliveryStatus) {
	s.receiptsMu.Lock()
	defer s.receiptsMu.Unlock()
	current, ok := s.receipts[id]
	if ok {
		if current.CanTransition(status) {
			s.receipts[id] = status
		}
		return
	}
	s.receipts[id] = status
	s.order = append(s.order, id)
	if len(s.order) > receiptCacheSize {
		delete(s.receipts, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *WhatsAppTransport) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleMessage(v)
	case *events.Receipt:
		s.handleReceipt(v)
	case *events.Connected:
		s.log.Info().Msg("WhatsApp conectado")
		s.manager.SetConnected()
	case *events.Disconnected:
		s.log.Warn().Msg("WhatsApp desconectado")
		s.manager.SetDisconnected("disconnected")
	case *events.LoggedOut:
		s.log.Warn().Str("reason", v.Reason.String()).Msg("WhatsApp deslogado")
		s.manager.SetDisconnected("logged out")
	}
}

func (s *WhatsAppTransport) handleMessage(msg *events.Message) {
	info := msg.Info
	if info.IsFromMe || info.IsGroup || info.Chat.Server == types.BroadcastServer || info.Chat.Server == types.GroupServer {
		return
	}
	if info.Sender.Server != types.DefaultUserServer {
		s.log.Debug().Str("sender", info.Sender.String()).Msg("remetente ignorado")
		return
	}

	content := extractText(msg.Message)
	if content == "" {
		s.log.Debug().Str("id", info.ID).Msg("mensagem sem texto ignorada")
		return
	}

	s.handlersMu.RLock()
	handler := s.onInbound
	s.handlersMu.RUnlock()
	if handler == nil {
		return
	}
	handler(context.Background(), InboundEvent{
		FromPhone:         info.Sender.ToNonAD().User,
		Content:           content,
		MessageType:       models.MessageTypeText,
		ProviderMessageID: info.ID,
	})
}

func extractText(m *waProto.Message) string {
	if m == nil {
		return ""
	}
	if text := m.GetConversation(); text != "" {
		return text
	}
	return m.GetExtendedTextMessage().GetText()
}

func receiptStatus(t types.ReceiptType) (models.DeliveryStatus, bool) {
	switch t {
	case types.ReceiptTypeDelivered:
		return models.StatusDelivered, true
	case types.ReceiptTypeRead, types.ReceiptTypePlayed:
		return models.StatusRead, true
	}
	return "", false
}

func (s *WhatsAppTransport) handleReceipt(receipt *events.Receipt) {
	status, ok := receiptStatus(receipt.Type)
	if !ok || receipt.IsFromMe {
		return
	}

	s.handlersMu.RLock()
	handler := s.onReceipt
	s.handlersMu.RUnlock()

	for _, id := range receipt.MessageIDs {
		s.rememberStatus(id, status)
		if handler != nil {
			handler(context.Background(), id, status)
		}
	}
}
