package identity

// DefaultRoleName is assigned to every newly provisioned user.
const DefaultRoleName = "User"

// Built-in permission codes. Codes are stable identifiers; display names and
// grouping live in the catalog rows.
const (
	PermFlashcardRead  = "flashcard.read"
	PermFlashcardWrite = "flashcard.write"

	PermUserManage       = "user.manage"
	PermRoleManage       = "role.manage"
	PermPermissionManage = "permission.manage"
)

// BuiltinPermissions is the catalog seeded at startup. EnsurePermissions is
// idempotent, so re-running against an existing catalog is safe.
var BuiltinPermissions = []Permission{
	{Code: PermFlashcardRead, Name: "Read flashcards", Module: "flashcards"},
	{Code: PermFlashcardWrite, Name: "Create and edit flashcards", Module: "flashcards"},
	{Code: PermUserManage, Name: "Manage users", Module: "admin"},
	{Code: PermRoleManage, Name: "Manage roles", Module: "admin"},
	{Code: PermPermissionManage, Name: "Manage permissions", Module: "admin"},
}
