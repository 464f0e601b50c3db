package shared

// Permission names follow the MODULE_ACTION convention. Guard call sites
// use these constants instead of string literals so a typo is a compile
// error, not a silent deny.
const (
	PermUsersRead   = "USERS_READ"
	PermUsersManage = "USERS_MANAGE"

	PermRolesRead   = "ROLES_READ"
	PermRolesManage = "ROLES_MANAGE"

	PermPermissionsRead = "PERMISSIONS_READ"

	PermDevicesRead   = "DEVICES_READ"
	PermDevicesCreate = "DEVICES_CREATE"
	PermDevicesUpdate = "DEVICES_UPDATE"
	PermDevicesDelete = "DEVICES_DELETE"

	PermLicensesRead   = "LICENSES_READ"
	PermLicensesManage = "LICENSES_MANAGE"

	PermCertificatesRead   = "CERTIFICATES_READ"
	PermCertificatesManage = "CERTIFICATES_MANAGE"

	PermTicketsRead  = "TICKETS_READ"
	PermTicketsWrite = "TICKETS_WRITE"

	PermInventoryRead    = "INVENTORY_READ"
	PermInventoryExecute = "INVENTORY_EXECUTE"

	PermManageSystemSettings = "MANAGE_SYSTEM_SETTINGS"
)

// CorePermissions lists every permission the engine itself gates on.
func CorePermissions() []string {
	return []string{
		PermUsersRead,
		PermUsersManage,
		PermRolesRead,
		PermRolesManage,
		PermPermissionsRead,
		PermManageSystemSettings,
	}
}
