package fulfillment

import "github.com/shopspring/decimal"

// Step of the order wizard. Strictly linear; payment and transport are the
// only skippable steps.
type Step string

const (
	StepOrderInfo Step = "ORDER_INFO"
	StepBuildCart Step = "BUILD_CART"
	StepPayment   Step = "PAYMENT"
	StepTransport Step = "TRANSPORT"
	StepCommit    Step = "COMMIT"
)

var forwardNext = map[Step]Step{
	StepOrderInfo: StepBuildCart,
	StepBuildCart: StepPayment,
	StepPayment:   StepTransport,
	StepTransport: StepCommit,
}

var stepRank = map[Step]int{
	StepOrderInfo: 1,
	StepBuildCart: 2,
	StepPayment:   3,
	StepTransport: 4,
	StepCommit:    5,
}

// CanEdit reports whether a session at from may re-enter target. Backward
// only; the commit step itself is never re-entered, it either runs or the
// session is abandoned.
func CanEdit(from, target Step) bool {
	return stepRank[target] > 0 && stepRank[target] < stepRank[from]
}

// OrderInfo is the S1 capture.
type OrderInfo struct {
	CustomerID int64  `json:"customer_id"`
	EmployeeID int64  `json:"employee_id"`
	OrderDate  string `json:"order_date"`
	Status     string `json:"status"`
}

// PaymentInfo is the S3 capture. Amount defaults to the cart total when
// presented but stays independently editable; partial payments are allowed.
type PaymentInfo struct {
	Skipped bool            `json:"skipped"`
	Date    string          `json:"date"`
	Amount  decimal.Decimal `json:"amount"`
	Mode    string          `json:"mode"`
}

// TransportInfo is the S4 capture.
type TransportInfo struct {
	Skipped       bool   `json:"skipped"`
	VehicleNumber string `json:"vehicle_number"`
	DriverName    string `json:"driver_name"`
	Mode          string `json:"mode"`
	DepartureDate string `json:"departure_date"`
	ArrivalDate   string `json:"arrival_date"`
	Status        string `json:"status"`
}
