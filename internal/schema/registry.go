package schema

// Entity and table names used across the service.
const (
	TableCustomers      = "customers"
	TableSuppliers      = "suppliers"
	TableProducts       = "products"
	TableEmployees      = "employees"
	TableOrders         = "orders"
	TableOrderItems     = "order_items"
	TablePayments       = "payments"
	TableTransportation = "transportation"
	TableUsers          = "users"
)

var (
	OrderStatuses     = []string{"Pending", "Dispatched", "Delivered"}
	PaymentModes      = []string{"Cash", "UPI", "Online Transfer", "Cheque"}
	TransportModes    = []string{"Truck", "Van", "Mini Truck", "Tempo"}
	TransportStatuses = []string{"In Transit", "Delivered", "Delayed"}
	UserRoles         = []string{"Staff", "Manager"}
)

// atLeast declares an inclusive lower bound for a numeric column.
func atLeast(n int64) *int64 { return &n }

// Default declares the whole back-office model. Children of an order go
// with it on delete; every other relationship rejects the delete while
// rows still point at the target.
func Default() *Registry {
	r, err := NewRegistry([]Table{
		{
			Name: TableCustomers, ID: "customer_id",
			Columns: []Column{
				{Name: "name", Type: Text, Required: true},
				{Name: "shop_name", Type: Text},
				{Name: "phone", Type: Text},
				{Name: "email", Type: Text},
				{Name: "address", Type: Text},
				{Name: "city", Type: Text},
				{Name: "state", Type: Text},
				{Name: "pincode", Type: Text},
			},
		},
		{
			Name: TableSuppliers, ID: "supplier_id",
			Columns: []Column{
				{Name: "name", Type: Text, Required: true},
				{Name: "company_name", Type: Text},
				{Name: "phone", Type: Text},
				{Name: "email", Type: Text},
				{Name: "address", Type: Text},
				{Name: "city", Type: Text},
				{Name: "state", Type: Text},
				{Name: "pincode", Type: Text},
			},
		},
		{
			Name: TableProducts, ID: "product_id",
			Columns: []Column{
				{Name: "name", Type: Text, Required: true},
				{Name: "category", Type: Text},
				{Name: "unit_price", Type: Decimal, Required: true, Min: atLeast(0)},
				{Name: "stock_quantity", Type: Integer, Required: true, Min: atLeast(0)},
				{Name: "supplier_id", Type: Reference, Required: true,
					Ref: &Ref{Table: TableSuppliers, Column: "supplier_id", OnDelete: Restrict}},
			},
		},
		{
			Name: TableEmployees, ID: "employee_id",
			Columns: []Column{
				{Name: "name", Type: Text, Required: true},
				{Name: "role", Type: Text},
				{Name: "phone", Type: Text},
				{Name: "email", Type: Text},
				{Name: "salary", Type: Decimal, Min: atLeast(0)},
			},
		},
		{
			Name: TableOrders, ID: "order_id",
			Columns: []Column{
				{Name: "customer_id", Type: Reference, Required: true,
					Ref: &Ref{Table: TableCustomers, Column: "customer_id", OnDelete: Restrict}},
				{Name: "employee_id", Type: Reference, Required: true,
					Ref: &Ref{Table: TableEmployees, Column: "employee_id", OnDelete: Restrict}},
				{Name: "order_date", Type: Date, Required: true},
				{Name: "status", Type: Choice, Required: true, Choices: OrderStatuses},
			},
		},
		{
			Name: TableOrderItems, ID: "order_item_id",
			Columns: []Column{
				{Name: "order_id", Type: Reference, Required: true,
					Ref: &Ref{Table: TableOrders, Column: "order_id", OnDelete: Cascade}},
				{Name: "product_id", Type: Reference, Required: true,
					Ref: &Ref{Table: TableProducts, Column: "product_id", OnDelete: Restrict}},
				{Name: "quantity", Type: Integer, Required: true, Min: atLeast(1)},
				// quantity x unit price at sale time, not a per-unit price
				{Name: "line_total", Type: Decimal, Required: true, Min: atLeast(0)},
			},
		},
		{
			Name: TablePayments, ID: "payment_id",
			Columns: []Column{
				{Name: "order_id", Type: Reference, Required: true,
					Ref: &Ref{Table: TableOrders, Column: "order_id", OnDelete: Cascade}},
				{Name: "payment_date", Type: Date, Required: true},
				{Name: "amount", Type: Decimal, Required: true, Min: atLeast(0)},
				{Name: "payment_mode", Type: Choice, Required: true, Choices: PaymentModes},
			},
		},
		{
			Name: TableTransportation, ID: "transport_id",
			Columns: []Column{
				{Name: "order_id", Type: Reference, Required: true,
					Ref: &Ref{Table: TableOrders, Column: "order_id", OnDelete: Cascade}},
				{Name: "vehicle_number", Type: Text, Required: true},
				{Name: "driver_name", Type: Text, Required: true},
				{Name: "transport_mode", Type: Choice, Required: true, Choices: TransportModes},
				{Name: "departure_date", Type: Date},
				{Name: "arrival_date", Type: Date},
				{Name: "status", Type: Choice, Required: true, Choices: TransportStatuses},
			},
		},
		{
			Name: TableUsers, ID: "user_id",
			Columns: []Column{
				{Name: "username", Type: Text, Required: true},
				{Name: "password_hash", Type: Text, Required: true},
				{Name: "role", Type: Choice, Required: true, Choices: UserRoles},
				{Name: "name", Type: Text, Required: true},
				{Name: "email", Type: Text},
				{Name: "is_active", Type: Integer, Required: true},
			},
		},
	})
	if err != nil {
		// the default declaration is part of the program; a bad one is a bug
		panic(err)
	}
	return r
}
