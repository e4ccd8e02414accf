package reservation

// CanModify reports whether an actor may change a reservation created by creatorID.
//
//	admin, editor  -> always
//	visualizador   -> only their own reservations
//	anything else  -> never
func CanModify(role Role, actorID, creatorID int64) bool {
	switch role {
	case RoleAdmin, RoleEditor:
		return true
	case RoleViewer:
		return actorID == creatorID
	default:
		return false
	}
}

// authorize applies CanModify to r and returns an *AccessDeniedError on refusal.
func authorize(actor Actor, r *Reservation) error {
	if CanModify(actor.Role, actor.ID, r.CreatedBy) {
		return nil
	}
	return &AccessDeniedError{Actor: actor, ReservationID: r.ID}
}

// KnownRole reports whether role is one the system recognizes.
func KnownRole(role Role) bool {
	return role == RoleAdmin || role == RoleEditor || role == RoleViewer
}
