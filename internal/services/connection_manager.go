package services

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/skip2/go-qrcode"

	"whatsapp-router/internal/utils"
)

const (
	ConnectionDisconnected = "disconnected"
	ConnectionConnecting   = "connecting"
	ConnectionConnected    = "connected"
)

// ConnectionStatus is the pairing state of the provider session shown to
// operators.
type ConnectionStatus struct {
	Status                string     `json:"status"`
	QRCodeBase64          string     `json:"qrcode_base64,omitempty"`
	LastQRCodeGeneratedAt *time.Time `json:"last_qrcode_generated_at,omitempty"`
	LastConnectedAt       *time.Time `json:"last_connected_at,omitempty"`
	LastDisconnectedAt    *time.Time `json:"last_disconnected_at,omitempty"`
	LastError             string     `json:"last_error,omitempty"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// ConnectionManager keeps the pairing state of the WhatsApp session.
type ConnectionManager struct {
	mutex  sync.RWMutex
	status ConnectionStatus
	now    func() time.Time
}

func NewConnectionManager(now func() time.Time) *ConnectionManager {
	if now == nil {
		now = time.Now
	}
	return &ConnectionManager{
		status: ConnectionStatus{Status: ConnectionDisconnected, UpdatedAt: now().UTC()},
		now:    now,
	}
}

// UpdateQRCode renders the pairing code as a base64 PNG data URL.
func (cm *ConnectionManager) UpdateQRCode(qrcodeText string) error {
	utils.LogDebug("Convertendo QR code para base64")

	qr, err := qrcode.Encode(qrcodeText, qrcode.Medium, 256)
	if err != nil {
		utils.LogError("Erro ao gerar QR code em PNG: %v", err)
		return fmt.Errorf("erro ao gerar QR code: %w", err)
	}
	qrcodeBase64 := "data:image/png;base64," + base64.StdEncoding.EncodeToString(qr)

	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	now := cm.now().UTC()
	cm.status.QRCodeBase64 = qrcodeBase64
	cm.status.LastQRCodeGeneratedAt = &now
	cm.status.Status = ConnectionConnecting
	cm.status.UpdatedAt = now

	utils.LogInfo("QR code atualizado com sucesso")
	return nil
}

func (cm *ConnectionManager) SetConnected() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	now := cm.now().UTC()
	cm.status.Status = ConnectionConnected
	cm.status.QRCodeBase64 = ""
	cm.status.LastConnectedAt = &now
	cm.status.LastError = ""
	cm.status.UpdatedAt = now
}

func (cm *ConnectionManager) SetDisconnected(reason string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	now := cm.now().UTC()
	cm.status.Status = ConnectionDisconnected
	cm.status.LastDisconnectedAt = &now
	cm.status.LastError = reason
	cm.status.UpdatedAt = now
}

func (cm *ConnectionManager) GetConnectionStatus() ConnectionStatus {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return cm.status
}

// GetQRCode returns the current pairing code, if one is waiting to be scanned.
func (cm *ConnectionManager) GetQRCode() (string, bool) {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	if cm.status.Status != ConnectionConnecting || cm.status.QRCodeBase64 == "" {
		return "", false
	}
	return cm.status.QRCodeBase64, true
}
