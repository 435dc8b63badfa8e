package cdek

// OrderRequest is the order registration payload. Field coverage tracks what
// the storefront actually sends, not the whole carrier API.
type OrderRequest struct {
	Type                     int            `json:"type,omitempty"`
	Number                   string         `json:"number"`
	TariffCode               int            `json:"tariff_code"`
	Comment                  string         `json:"comment,omitempty"`
	ShipmentPoint            string         `json:"shipment_point,omitempty"`
	DeliveryPoint            string         `json:"delivery_point,omitempty"`
	DateInvoice              string         `json:"date_invoice,omitempty"`
	ShipperName              string         `json:"shipper_name,omitempty"`
	ShipperAddress           string         `json:"shipper_address,omitempty"`
	DeliveryRecipientCost    *Money         `json:"delivery_recipient_cost,omitempty"`
	DeliveryRecipientCostAdv []ThresholdFee `json:"delivery_recipient_cost_adv,omitempty"`
	Sender                   *Contact       `json:"sender,omitempty"`
	Recipient                Contact        `json:"recipient"`
	FromLocation             *Location      `json:"from_location,omitempty"`
	ToLocation               *Location      `json:"to_location,omitempty"`
	Services                 []Service      `json:"services,omitempty"`
	Packages                 []Package      `json:"packages"`
}

type Money struct {
	Value int `json:"value"`
}

type ThresholdFee struct {
	Sum       int `json:"sum"`
	Threshold int `json:"threshold"`
}

type Contact struct {
	Company string  `json:"company,omitempty"`
	Name    string  `json:"name"`
	Email   string  `json:"email,omitempty"`
	Phones  []Phone `json:"phones"`
}

type Phone struct {
	Number string `json:"number"`
}

type Location struct {
	Code        int    `json:"code,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	City        string `json:"city,omitempty"`
	Address     string `json:"address,omitempty"`
}

type Service struct {
	Code      string `json:"code"`
	Parameter string `json:"parameter,omitempty"`
}

// Package is one physical box. Dimensions are centimeters, weight grams.
type Package struct {
	Number  string        `json:"number"`
	Height  int           `json:"height"`
	Length  int           `json:"length"`
	Width   int           `json:"width"`
	Weight  int           `json:"weight"`
	Comment string        `json:"comment,omitempty"`
	Items   []PackageItem `json:"items"`
}

type PackageItem struct {
	WareKey string `json:"ware_key"`
	Name    string `json:"name"`
	Payment Money  `json:"payment"`
	Cost    int    `json:"cost"`
	Amount  int    `json:"amount"`
	Weight  int    `json:"weight"`
}

// OrderRef is the uuid handle returned on registration.
type OrderRef struct {
	UUID string `json:"uuid"`
}

// APIError is a structured failure reported inside an otherwise 200 response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OrderInfo is the registration state snapshot returned by the order lookup.
type OrderInfo struct {
	UUID           string
	TrackingNumber string
	Errors         []APIError
}

// Barcode is the A4 barcode artifact handle.
type Barcode struct {
	UUID string
	URL  string
}
