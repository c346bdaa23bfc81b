package models

type InboundEventRequest struct {
	FromPhone         string `json:"fromPhone" example:"5511998765432" swagger:"required" description:"Telefone de origem"`
	Content           string `json:"content" example:"oi" description:"Texto recebido"`
	MessageType       string `json:"messageType" example:"text"`
	ProviderMessageID string `json:"providerMessageId" example:"3EB0C767D26A1D8E4C2B"`
}

type ReceiptRequest struct {
	ProviderMessageID string `json:"providerMessageId" example:"3EB0C767D26A1D8E4C2B" swagger:"required"`
	Status            string `json:"status" example:"delivered" swagger:"required" description:"Status informado pelo provedor"`
}

type SendMessageRequest struct {
	Body        string `json:"body" example:"Olá, como posso ajudar?" swagger:"required"`
	AdminID     *int   `json:"adminId"`
	IsAnonymous bool   `json:"isAnonymous"`
}

type AssignAdminRequest struct {
	AdminID int `json:"adminId" example:"7" swagger:"required"`
}

type EndConversationRequest struct {
	AdminID int `json:"adminId" example:"7" swagger:"required"`
}

type SupportMessageRequest struct {
	ClientID   int            `json:"clientId" example:"12" swagger:"required"`
	AdminID    *int           `json:"adminId"`
	FromClient bool           `json:"fromClient"`
	Content    MessageContent `json:"content"`
}

type MarkReadRequest struct {
	ClientID       int  `json:"clientId" example:"12" swagger:"required"`
	ReaderIsClient bool `json:"readerIsClient"`
}
