package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"whatsapp-router/internal/models"
	"whatsapp-router/internal/phone"
	"whatsapp-router/internal/services"
	"whatsapp-router/internal/utils"
)

const maxUploadMemory = 16 << 20

type HTTPHandler struct {
	engine     *services.Engine
	reconciler *services.Reconciler
	support    *services.SupportService
	manager    *services.ConnectionManager
	normalizer phone.Normalizer
}

// NewHTTPHandler wires the REST surface. manager may be nil when the
// provider is not a linked WhatsApp device.
func NewHTTPHandler(engine *services.Engine, reconciler *services.Reconciler, support *services.SupportService, manager *services.ConnectionManager, normalizer phone.Normalizer) *HTTPHandler {
	if len(normalizer.DomesticLengths) == 0 {
		normalizer = phone.Default
	}
	return &HTTPHandler{
		engine:     engine,
		reconciler: reconciler,
		support:    support,
		manager:    manager,
		normalizer: normalizer,
	}
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorCodeInvalidPhone, services.ErrorCodeValidation:
		return http.StatusBadRequest
	case services.ErrorCodeNotFound:
		return http.StatusNotFound
	case services.ErrorCodePermissionDenied:
		return http.StatusForbidden
	case services.ErrorCodeConflict:
		return http.StatusConflict
	case services.ErrorCodeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, route string, err error) {
	code := services.CodeOf(err)
	status := statusFor(code)
	message := "Erro interno"
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		message = svcErr.Message
	}
	if status >= http.StatusInternalServerError {
		utils.LogError("Erro em %s: %v", route, err)
	} else {
		utils.LogDebug("Requisição recusada em %s: %v", route, err)
	}
	models.RespondWithJSON(w, status, models.NewCodedErrorResponse(string(code), message))
}

func respondBadRequest(w http.ResponseWriter, route, message string) {
	utils.LogDebug("Requisição inválida em %s: %s", route, message)
	models.RespondWithJSON(w, http.StatusBadRequest,
		models.NewCodedErrorResponse(string(services.ErrorCodeValidation), message))
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}

func queryInt(r *http.Request, name string) (int, bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	return v, true, err
}

// @Summary Receive an inbound message
// @Description Entry point for provider message events. Creates or advances the sender's conversation.
// @Tags webhook
// @Accept json
// @Produce json
// @Param request body models.InboundEventRequest true "Inbound event"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /webhook/inbound [post]
func (h *HTTPHandler) ReceiveInbound(w http.ResponseWriter, r *http.Request) {
	var req models.InboundEventRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "/webhook/inbound", "Erro ao decodificar requisição: "+err.Error())
		return
	}

	result, err := h.engine.HandleInbound(r.Context(), services.InboundEvent{
		FromPhone:         req.FromPhone,
		Content:           req.Content,
		MessageType:       req.MessageType,
		ProviderMessageID: req.ProviderMessageID,
	})
	if err != nil {
		respondError(w, "/webhook/inbound", err)
		return
	}

	message := "Mensagem recebida com sucesso"
	if result.Duplicate {
		message = "Evento já processado"
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse(message, result))
}

// @Summary Receive a delivery receipt
// @Tags webhook
// @Accept json
// @Produce json
// @Param request body models.ReceiptRequest true "Receipt"
// @Success 200 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /webhook/receipts [post]
func (h *HTTPHandler) ReceiveReceipt(w http.ResponseWriter, r *http.Request) {
	var req models.ReceiptRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "/webhook/receipts", "Erro ao decodificar requisição: "+err.Error())
		return
	}
	if req.ProviderMessageID == "" {
		respondBadRequest(w, "/webhook/receipts", "providerMessageId é obrigatório")
		return
	}

	msg, changed, err := h.engine.HandleReceipt(r.Context(), req.ProviderMessageID, req.Status)
	if err != nil {
		respondError(w, "/webhook/receipts", err)
		return
	}
	data := map[string]interface{}{
		"message": msg,
		"changed": changed,
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Recibo processado", data))
}

// @Summary List live conversations
// @Description Conversations not yet ENDED. With adminId, only those the operator may access.
// @Tags conversations
// @Produce json
// @Param adminId query int false "Operador"
// @Success 200 {object} models.APIResponse
// @Router /conversations [get]
func (h *HTTPHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	adminID, filtered, err := queryInt(r, "adminId")
	if err != nil {
		respondBadRequest(w, "/conversations", "adminId deve ser um número válido")
		return
	}

	list, err := h.engine.ListActive(r.Context())
	if err != nil {
		respondError(w, "/conversations", err)
		return
	}
	if filtered {
		visible := make([]*models.Conversation, 0, len(list))
		for _, c := range list {
			ok, err := h.engine.Resolver().IsAuthorizedByID(r.Context(), adminID, c)
			if err != nil {
				respondError(w, "/conversations", err)
				return
			}
			if ok {
				visible = append(visible, c)
			}
		}
		list = visible
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Conversas carregadas", list))
}

// @Summary Get a conversation
// @Tags conversations
// @Produce json
// @Param id path string true "Conversa"
// @Success 200 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /conversations/{id} [get]
func (h *HTTPHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	view, err := h.engine.GetConversation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, "/conversations/{id}", err)
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Conversa carregada", view))
}

// @Summary Send an operator message
// @Description Sends through the provider. The stored content never carries the signature prefix.
// @Tags conversations
// @Accept json
// @Produce json
// @Param id path string true "Conversa"
// @Param request body models.SendMessageRequest true "Mensagem"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Failure 502 {object} models.APIResponse
// @Router /conversations/{id}/messages [post]
func (h *HTTPHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "/conversations/{id}/messages", "Erro ao decodificar requisição: "+err.Error())
		return
	}

	msg, err := h.engine.SendMessage(r.Context(), mux.Vars(r)["id"], req.Body, req.AdminID, req.IsAnonymous)
	if err != nil {
		respondError(w, "/conversations/{id}/messages", err)
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Mensagem enviada com sucesso", msg))
}

// @Summary Assign an operator
// @Tags conversations
// @Accept json
// @Produce json
// @Param id path string true "Conversa"
// @Param request body models.AssignAdminRequest true "Operador"
// @Success 200 {object} models.APIResponse
// @Router /conversations/{id}/assign [post]
func (h *HTTPHandler) AssignAdmin(w http.ResponseWriter, r *http.Request) {
	var req models.AssignAdminRequest
	if err := decodeJSON(r, &req); err != nil || req.AdminID <= 0 {
		respondBadRequest(w, "/conversations/{id}/assign", "adminId é obrigatório")
		return
	}

	conv, err := h.engine.AssignAdmin(r.Context(), mux.Vars(r)["id"], req.AdminID)
	if err != nil {
		respondError(w, "/conversations/{id}/assign", err)
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Atendente atribuído", conv))
}

// @Summary End a conversation
// @Description Only the assigned operator may end a conversation.
// @Tags conversations
// @Accept json
// @Produce json
// @Param id path string true "Conversa"
// @Param request body models.EndConversationRequest true "Operador"
// @Success 200 {object} models.APIResponse
// @Failure 403 {object} models.APIResponse
// @Router /conversations/{id}/end [post]
func (h *HTTPHandler) EndConversation(w http.ResponseWriter, r *http.Request) {
	var req models.EndConversationRequest
	if err := decodeJSON(r, &req); err != nil || req.AdminID <= 0 {
		respondBadRequest(w, "/conversations/{id}/end", "adminId é obrigatório")
		return
	}

	conv, err := h.engine.EndConversation(r.Context(), mux.Vars(r)["id"], req.AdminID)
	if err != nil {
		respondError(w, "/conversations/{id}/end", err)
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Atendimento encerrado", conv))
}

// @Summary Resend the department menu
// @Tags conversations
// @Produce json
// @Param id path string true "Conversa"
// @Success 200 {object} models.APIResponse
// @Router /conversations/{id}/resend-menu [post]
func (h *HTTPHandler) ResendMenu(w http.ResponseWriter, r *http.Request) {
	msg, err := h.engine.ResendMenu(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, "/conversations/{id}/resend-menu", err)
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Menu reenviado", msg))
}

// @Summary Conversation delivery health
// @Tags health
// @Produce json
// @Param id path string true "Conversa"
// @Success 200 {object} models.APIResponse
// @Router /conversations/{id}/health [get]
func (h *HTTPHandler) ConversationHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.AnalyzeConversation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, "/conversations/{id}/health", err)
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Saúde da conversa calculada", report))
}

// @Summary Correlate delivery status
// @Description Polls the provider once for the message (or the latest outbound of the conversation) and reconciles its status.
// @Tags health
// @Produce json
// @Param messageId query string false "Mensagem"
// @Param conversationId query string false "Conversa"
// @Success 200 {object} models.APIResponse
// @Router /health/deliveries [get]
func (h *HTTPHandler) DeliveryHealth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := h.reconciler.Correlate(r.Context(), q.Get("messageId"), q.Get("conversationId"))
	if err != nil {
		respondError(w, "/health/deliveries", err)
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Status de entrega verificado", report))
}

// @Summary Fleet delivery health
// @Tags health
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /health/fleet [get]
func (h *HTTPHandler) FleetHealth(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reconciler.FleetHealth(r.Context())
	if err != nil {
		respondError(w, "/health/fleet", err)
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Saúde das conversas calculada", reports))
}

// @Summary Phone lookup variants
// @Tags phone
// @Produce json
// @Param phone query string true "Telefone"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /phone/variants [get]
func (h *HTTPHandler) PhoneVariants(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("phone")
	normalized, err := h.normalizer.Normalize(raw)
	if err != nil {
		models.RespondWithJSON(w, http.StatusBadRequest,
			models.NewCodedErrorResponse(string(services.ErrorCodeInvalidPhone), "Telefone inválido"))
		return
	}
	variants, err := h.normalizer.Variants(raw)
	if err != nil {
		models.RespondWithJSON(w, http.StatusBadRequest,
			models.NewCodedErrorResponse(string(services.ErrorCodeInvalidPhone), "Telefone inválido"))
		return
	}
	data := map[string]interface{}{
		"normalized": normalized,
		"variants":   variants,
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Variações geradas", data))
}

// @Summary Send a support message
// @Tags support
// @Accept json
// @Produce json
// @Param request body models.SupportMessageRequest true "Mensagem"
// @Success 201 {object} models.APIResponse
// @Router /support/messages [post]
func (h *HTTPHandler) SendSupportMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SupportMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "/support/messages", "Erro ao decodificar requisição: "+err.Error())
		return
	}
	msg, err := h.support.Send(r.Context(), req)
	if err != nil {
		respondError(w, "/support/messages", err)
		return
	}
	models.RespondWithJSON(w, http.StatusCreated, models.NewSuccessResponse("Mensagem enviada com sucesso", msg))
}

// @Summary List support messages
// @Tags support
// @Produce json
// @Param clientId query int true "Cliente"
// @Param limit query int false "Limite"
// @Success 200 {object} models.APIResponse
// @Router /support/messages [get]
func (h *HTTPHandler) ListSupportMessages(w http.ResponseWriter, r *http.Request) {
	clientID, ok, err := queryInt(r, "clientId")
	if err != nil || !ok {
		respondBadRequest(w, "/support/messages", "clientId deve ser um número válido")
		return
	}
	limit, _, err := queryInt(r, "limit")
	if err != nil {
		respondBadRequest(w, "/support/messages", "limit deve ser um número válido")
		return
	}

	list, err := h.support.List(r.Context(), clientID, limit)
	if err != nil {
		respondError(w, "/support/messages", err)
		return
	}
	unread, err := h.support.UnreadCount(r.Context(), clientID, false)
	if err != nil {
		respondError(w, "/support/messages", err)
		return
	}
	data := map[string]interface{}{
		"messages": list,
		"unread":   unread,
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Mensagens carregadas", data))
}

// @Summary Mark support messages as read
// @Tags support
// @Accept json
// @Produce json
// @Param request body models.MarkReadRequest true "Leitor"
// @Success 200 {object} models.APIResponse
// @Router /support/messages/read [post]
func (h *HTTPHandler) MarkSupportRead(w http.ResponseWriter, r *http.Request) {
	var req models.MarkReadRequest
	if err := decodeJSON(r, &req); err != nil || req.ClientID <= 0 {
		respondBadRequest(w, "/support/messages/read", "clientId é obrigatório")
		return
	}
	marked, err := h.support.MarkRead(r.Context(), req.ClientID, req.ReaderIsClient)
	if err != nil {
		respondError(w, "/support/messages/read", err)
		return
	}
	data := map[string]interface{}{
		"client_id": req.ClientID,
		"marked":    marked,
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Mensagens marcadas como lidas", data))
}

// @Summary Upload a support attachment
// @Description Stores the file and returns the content to attach to a support message.
// @Tags support
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Arquivo"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /support/upload [post]
func (h *HTTPHandler) UploadSupportAttachment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respondBadRequest(w, "/support/upload", "Arquivo muito grande. Limite de 16MB")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondBadRequest(w, "/support/upload", "Erro ao processar arquivo")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondBadRequest(w, "/support/upload", "Erro ao ler arquivo")
		return
	}

	content, err := h.support.UploadAttachment(r.Context(), data, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		respondError(w, "/support/upload", err)
		return
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Arquivo enviado com sucesso", content))
}

// @Summary Get QR Code as base64
// @Description Returns the pairing QR code while the device is not linked
// @Tags authentication
// @Produce json
// @Success 200 {object} models.APIResponse
// @Failure 404 {object} models.APIResponse
// @Router /qrcode-base64 [get]
func (h *HTTPHandler) GetQRCodeBase64(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		models.RespondWithJSON(w, http.StatusNotFound, models.NewErrorResponse("Conexão WhatsApp não configurada"))
		return
	}

	if h.manager.GetConnectionStatus().Status == services.ConnectionConnected {
		data := map[string]interface{}{
			"status":  services.ConnectionConnected,
			"message": "O WhatsApp já está conectado e pronto para uso!",
		}
		models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("WhatsApp conectado com sucesso", data))
		return
	}

	qrCode, ok := h.manager.GetQRCode()
	if !ok {
		models.RespondWithJSON(w, http.StatusNotFound, models.NewWaitingResponse("O QR Code ainda não está disponível. Por favor, aguarde alguns segundos e tente novamente."))
		return
	}

	instructions := []string{
		"Para conectar seu WhatsApp, siga os passos abaixo:",
		"1. Abra o WhatsApp no seu celular",
		"2. Toque em Menu (três pontos) ou Configurações",
		"3. Selecione 'Aparelhos conectados'",
		"4. Toque em 'Conectar um aparelho'",
		"5. Aponte a câmera do seu celular para este QR Code",
	}
	data := map[string]interface{}{
		"qrcode":       qrCode,
		"instructions": strings.Join(instructions, "\n"),
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("QR Code gerado com sucesso", data))
}

// @Summary Check Connection Status
// @Tags authentication
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /status [get]
func (h *HTTPHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		data := map[string]interface{}{"status": "not_configured", "connected": false}
		models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse("Conexão WhatsApp não configurada", data))
		return
	}

	status := h.manager.GetConnectionStatus()
	var message string
	switch status.Status {
	case services.ConnectionConnected:
		message = "O WhatsApp está conectado e pronto para enviar mensagens!"
	case services.ConnectionConnecting:
		message = "O QR Code está pronto para ser escaneado."
	case services.ConnectionDisconnected:
		message = "O WhatsApp está desconectado."
	default:
		message = "Status desconhecido. Por favor, tente reconectar."
	}

	data := map[string]interface{}{
		"status":     status.Status,
		"connected":  status.Status == services.ConnectionConnected,
		"last_error": status.LastError,
		"updated_at": status.UpdatedAt,
	}
	models.RespondWithJSON(w, http.StatusOK, models.NewSuccessResponse(message, data))
}
