package transport

type RegisterRequest struct {
	FirstName     string `json:"first_name"     validate:"required,max=200"`
	FatherSurname string `json:"father_surname" validate:"required,max=200"`
	MotherSurname string `json:"mother_surname" validate:"max=200"`
	Email         string `json:"email"          validate:"required,email"`
	Username      string `json:"username"       validate:"required,max=200"`
	Password      string `json:"password"       validate:"required,min=6,max=72"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AddRoleRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role"     validate:"required"`
}

type ProductRequest struct {
	Name       string  `json:"name"        validate:"required,max=100"`
	Price      float64 `json:"price"       validate:"gte=0"`
	BrandID    uint    `json:"brand_id"    validate:"required"`
	CategoryID uint    `json:"category_id" validate:"required"`
}

type PatchProductRequest struct {
	Name       *string  `json:"name"        validate:"omitempty,max=100"`
	Price      *float64 `json:"price"       validate:"omitempty,gte=0"`
	BrandID    *uint    `json:"brand_id"`
	CategoryID *uint    `json:"category_id"`
}

type NameRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
