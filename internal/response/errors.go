package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Section session ───────────────────────────────────────────────
	ErrContentUnavailable   ErrCode = "CONTENT_UNAVAILABLE"
	ErrSectionNotMounted    ErrCode = "SECTION_NOT_MOUNTED"
	ErrInvalidTransition    ErrCode = "INVALID_TRANSITION"
	ErrSubmissionFailed     ErrCode = "SUBMISSION_FAILED"
	ErrSubmissionInFlight   ErrCode = "SUBMISSION_IN_FLIGHT"
	ErrSubmissionContext    ErrCode = "SUBMISSION_CONTEXT_MISSING"
	ErrSectionCompleted     ErrCode = "SECTION_ALREADY_COMPLETED"
	ErrStageAlreadySignaled ErrCode = "STAGE_ALREADY_SIGNALED"
	ErrAnswerRejected       ErrCode = "ANSWER_REJECTED"

	// ─── Mock orchestrator ─────────────────────────────────────────────
	ErrMockNotMounted ErrCode = "MOCK_NOT_MOUNTED"
	ErrStageMismatch  ErrCode = "STAGE_MISMATCH"
	ErrMockMismatch   ErrCode = "MOCK_MISMATCH"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrStoreUnavailable ErrCode = "STORE_UNAVAILABLE"
	ErrInternal         ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrConflict:
		return "Sumber daya sudah ada."

	// ─── Section session ───────────────────────────────────────────────
	case ErrContentUnavailable:
		return "Konten bagian ujian tidak tersedia. Silakan coba lagi."
	case ErrSectionNotMounted:
		return "Bagian ujian belum dibuka."
	case ErrInvalidTransition:
		return "Tindakan ini tidak dapat dilakukan pada status saat ini."
	case ErrSubmissionFailed:
		return "Pengiriman jawaban gagal. Jawaban Anda tetap tersimpan, silakan kirim ulang."
	case ErrSubmissionInFlight:
		return "Jawaban sedang dikirim."
	case ErrSubmissionContext:
		return "Data peserta atau bagian ujian tidak lengkap."
	case ErrSectionCompleted:
		return "Bagian ujian ini sudah selesai."
	case ErrStageAlreadySignaled:
		return "Bagian ujian ini sudah dikirim dan sedang diproses."
	case ErrAnswerRejected:
		return "Jawaban tidak dapat diubah saat ini."

	// ─── Mock orchestrator ─────────────────────────────────────────────
	case ErrMockNotMounted:
		return "Ujian belum dibuka."
	case ErrStageMismatch:
		return "Bagian ini bukan tahap ujian yang sedang aktif."
	case ErrMockMismatch:
		return "Ujian ini sudah dibuka dengan konfigurasi lain."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrStoreUnavailable:
		return "Penyimpanan progres tidak tersedia."
	case ErrInternal:
		return "Terjadi kesalahan internal pada server."

	default:
		return "Terjadi kesalahan yang tidak diketahui."
	}
}
