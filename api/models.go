package api

// JobStatus is a job's lifecycle state as reported by the server.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobStarted JobStatus = "started"
	JobSuccess JobStatus = "success"
	JobFailure JobStatus = "failure"
)

// InProgress reports whether the job still needs polling.
func (s JobStatus) InProgress() bool {
	return s == JobPending || s == JobStarted
}

// LoginRequest carries the credentials for the login form.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the token pair issued by /login and /refresh.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// ForgottenPasswordRequest starts a password reset.
type ForgottenPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest completes a password reset.
type ResetPasswordRequest struct {
	Email               string `json:"email"`
	NewPassword         string `json:"new_password"`
	NewPasswordRepeated string `json:"new_password_repeated"`
	Token               string `json:"token"`
}

// JobCreateRequest describes the anonymization work to run.
type JobCreateRequest struct {
	DatasetID  string         `json:"dataset_id"`
	Kind       string         `json:"kind,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// JobProgress is the server's partial-completion report.
type JobProgress struct {
	Complete int `json:"complete"`
	Total    int `json:"total"`
}

// JobResponse is the job resource returned by creation and status calls.
type JobResponse struct {
	ID              string         `json:"id"`
	Name            string         `json:"name,omitempty"`
	Kind            string         `json:"kind,omitempty"`
	Status          JobStatus      `json:"status"`
	CreatedAt       string         `json:"created_at,omitempty"`
	LastUpdatedAt   string         `json:"last_updated_at,omitempty"`
	CurrentProgress *JobProgress   `json:"current_progress,omitempty"`
	Result          map[string]any `json:"result,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
}

// JobList is the collection returned by the jobs listing.
type JobList struct {
	Jobs []JobResponse `json:"jobs"`
}

// Dataset is the resource created by a dataset upload.
type Dataset struct {
	ID        string `json:"id"`
	Hash      string `json:"hash,omitempty"`
	Name      string `json:"name,omitempty"`
	NbLines   int    `json:"nb_lines,omitempty"`
	NbColumns int    `json:"nb_dimensions,omitempty"`
}

// FileAccess is a signed grant to download a result file.
type FileAccess struct {
	URL       string `json:"url"`
	Signature string `json:"signature,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}
