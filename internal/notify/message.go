package notify

import "deliverycart/internal/model"

const (
	ProjectDelivery      = "delivery"
	WorkflowNewOrder     = "delivery_order"
	WorkflowStatusChange = "order_status_update"
)

// Message is the envelope accepted by the messaging router.
type Message struct {
	ProjectType  string `json:"project_type,omitempty"`
	WorkflowType string `json:"workflow_type"`
	PhoneNumber  string `json:"phone_number"`
	MessageData  any    `json:"message_data"`
}

type OrderData struct {
	OrderNumber   string     `json:"order_number"`
	CustomerName  string     `json:"customer_name"`
	Total         string     `json:"total"`
	DeliveryFee   string     `json:"delivery_fee"`
	DeliveryType  string     `json:"delivery_type"`
	PaymentMethod string     `json:"payment_method"`
	Address       string     `json:"address,omitempty"`
	Status        string     `json:"status"`
	Items         []ItemData `json:"items"`
}

type ItemData struct {
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	Price        string `json:"price"`
	Observations string `json:"observations,omitempty"`
}

type StatusData struct {
	OrderNumber  string `json:"order_number"`
	CustomerName string `json:"customer_name"`
	NewStatus    string `json:"new_status"`
	DeliveryType string `json:"delivery_type"`
}

// NewOrderMessage builds the "new order" notification sent after checkout.
func NewOrderMessage(o model.Order) Message {
	items := make([]ItemData, len(o.Items))
	for i, it := range o.Items {
		items[i] = ItemData{
			Name:         it.Name,
			Quantity:     it.Quantity,
			Price:        it.Price.StringFixed(2),
			Observations: it.Observations,
		}
	}
	return Message{
		ProjectType:  ProjectDelivery,
		WorkflowType: WorkflowNewOrder,
		PhoneNumber:  o.CustomerPhone,
		MessageData: OrderData{
			OrderNumber:   o.DisplayNumber(),
			CustomerName:  o.CustomerName,
			Total:         o.Total.StringFixed(2),
			DeliveryFee:   o.DeliveryFee.StringFixed(2),
			DeliveryType:  o.DeliveryType,
			PaymentMethod: o.PaymentMethod,
			Address:       o.Address,
			Status:        o.Status,
			Items:         items,
		},
	}
}

// NewStatusMessage builds the notification for an admin status change.
func NewStatusMessage(o model.Order) Message {
	return Message{
		ProjectType:  ProjectDelivery,
		WorkflowType: WorkflowStatusChange,
		PhoneNumber:  o.CustomerPhone,
		MessageData: StatusData{
			OrderNumber:  o.DisplayNumber(),
			CustomerName: o.CustomerName,
			NewStatus:    o.Status,
			DeliveryType: o.DeliveryType,
		},
	}
}
