package client

// Role is the access level of an account.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusLoaned   LoanStatus = "LOANED"
	LoanStatusFined    LoanStatus = "FINED"
	LoanStatusReturned LoanStatus = "RETURNED"
)

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Book struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Description     string    `json:"description"`
	ImageURL        string    `json:"imageUrl"`
	TotalCopies     int       `json:"totalCopies"`
	AvailableCopies int       `json:"availableCopies"`
	Category        *Category `json:"category,omitempty"`
}

// User is an account as exposed by the API. Password is only
// sent when creating an account or changing its password.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	Blocked  bool   `json:"blocked"`
}

// Loan carries the borrower and the book as they were when fetched.
// Dates use the YYYY-MM-DD layout.
type Loan struct {
	ID         int64      `json:"id"`
	User       User       `json:"user"`
	Book       Book       `json:"book"`
	LoanDate   string     `json:"loanDate"`
	DueDate    string     `json:"dueDate"`
	ReturnDate string     `json:"returnDate,omitempty"`
	Status     LoanStatus `json:"status"`
	DaysLate   int        `json:"daysLate"`
	FineAmount int64      `json:"fineAmount"`
}

// LoanEvent is one entry of a loan history.
type LoanEvent struct {
	LoanID     int64      `json:"loanId"`
	Kind       string     `json:"kind"`
	Status     LoanStatus `json:"status"`
	BookID     int64      `json:"bookId"`
	Username   string     `json:"username"`
	DaysLate   int        `json:"daysLate"`
	FineAmount int64      `json:"fineAmount"`
	At         string     `json:"at"`
}

type LoanSummary struct {
	Total    int `json:"total"`
	Loaned   int `json:"loaned"`
	Fined    int `json:"fined"`
	Returned int `json:"returned"`
	Overdue  int `json:"overdue"`
}

// Diagnosis is what the server reports about the caller.
type Diagnosis struct {
	Username string      `json:"username"`
	Role     Role        `json:"role"`
	Loans    LoanSummary `json:"loans"`
}

// RegisterRequest is the sign up payload.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"nombre"`
	Surname  string `json:"apellido"`
	Email    string `json:"email"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UploadedFile locates an image stored by the server.
type UploadedFile struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}
