package files

import "mime/multipart"

// FormUploadPayload is the request body for the multipart upload endpoint.
// The binder collects the first file of each form field into FormFiles.
type FormUploadPayload struct {
	FormFiles map[string]*multipart.FileHeader `json:"-"`
}

// MoveUploadPayload is the request body for moving an uploaded file into the
// books namespace.
type MoveUploadPayload struct {
	From string `json:"from" mod:"trim" validate:"required,max=4095"`
	To   string `json:"to" mod:"trim" validate:"required,max=4095"`
}
