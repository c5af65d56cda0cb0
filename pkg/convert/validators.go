package convert

// ExtractMetadataPayload is the request body for queueing an extraction job.
// ExtractCover defaults to true when omitted.
type ExtractMetadataPayload struct {
	FilePath     string `json:"file_path" mod:"trim" validate:"required,max=4095"`
	ExtractCover *bool  `json:"extract_cover"`
}
