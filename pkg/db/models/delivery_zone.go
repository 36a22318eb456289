package models

// DeliveryZone describes a serviceable postcode.
type DeliveryZone struct {
	Postcode       string `gorm:"column:postcode;primaryKey"`
	City           string `gorm:"column:city"`
	State          string `gorm:"column:state"`
	DeliveryDays   int    `gorm:"column:delivery_days;not null"`
	IsServiceable  bool   `gorm:"column:is_serviceable;not null"`
	IsCODAvailable bool   `gorm:"column:is_cod_available;not null"`
}
