package customers

type CreateCustomerRequest struct {
	DNI     string `json:"dni,omitempty" validate:"omitempty,numeric,len=8"`
	Name    string `json:"name" validate:"required_without=DNI,max=200"`
	Phone   string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Address string `json:"address,omitempty" validate:"omitempty,max=300"`
}

type ListCustomersRequest struct {
	Search string
	Limit  int
	Offset int
}
