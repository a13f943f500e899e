package model

// Project groups a source document's claims with their candidate references.
// ProductName is the product context used to boost drug-name tokens.
type Project struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	ProductName string `json:"product_name,omitempty" yaml:"product_name,omitempty"`
}
