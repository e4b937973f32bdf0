package model

// Bitable column names of the order table.
const (
	FieldNote     = "客户备注信息"
	FieldUrgent   = "是否加急"
	FieldQuantity = "下单数量"
	FieldImage    = "图片"
)

// OrderRecord is one order entry extracted by the AI.
type OrderRecord struct {
	Note     string
	Urgent   string
	Quantity int
	ImageRef string // file name, empty when the order has no picture
}

// Attachment is the Bitable descriptor of an uploaded file.
type Attachment struct {
	FileToken string `json:"file_token"`
}

// StorageRecord is the batch_create payload for a single row.
type StorageRecord struct {
	Fields map[string]any `json:"fields"`
}

// ToStorage builds the row with the raw image reference still in place.
// Callers swap the image field once the upload resolves.
func (r OrderRecord) ToStorage() StorageRecord {
	img := []any{}
	if r.ImageRef != "" {
		img = []any{r.ImageRef}
	}
	return StorageRecord{Fields: map[string]any{
		FieldNote:     r.Note,
		FieldUrgent:   r.Urgent,
		FieldQuantity: r.Quantity,
		FieldImage:    img,
	}}
}

func (s StorageRecord) SetAttachment(fileToken string) {
	s.Fields[FieldImage] = []any{Attachment{FileToken: fileToken}}
}

func (s StorageRecord) ClearImage() {
	s.Fields[FieldImage] = []any{}
}
