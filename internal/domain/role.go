package domain

// Role определяет capability-роль актора в системе
type Role string

const (
	// RoleAdministrator управляет ролями, полисами и выплатами.
	// Роль единственно-авторитетная: выдается только при bootstrap, не через API.
	RoleAdministrator Role = "administrator"

	// RoleSupplier регистрирует новые отправления
	RoleSupplier Role = "supplier"

	// RoleOracle пишет телеметрию (температура/координаты) в отправления
	RoleOracle Role = "oracle"
)

// Grantable сообщает, можно ли выдать роль через API.
// Администратора нельзя назначить динамически (Zero Trust к горячему пути).
func (r Role) Grantable() bool {
	return r == RoleSupplier || r == RoleOracle
}

// Valid проверяет, что строка из запроса — известная роль
func (r Role) Valid() bool {
	switch r {
	case RoleAdministrator, RoleSupplier, RoleOracle:
		return true
	}
	return false
}
