package sqlstore

import (
	"context"
	"fmt"
	"time"

	"billdesk/internal/domain"
	"billdesk/internal/store"
)

func (q *queries) GetExpenditure(ctx context.Context, id int64) (*domain.Expenditure, error) {
	var exp domain.Expenditure
	err := q.get(ctx, &exp, `SELECT id, date_time, sr_no_daily, description, amount FROM expenditures WHERE id = ?`, id)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("get expenditure %d", id), err)
	}
	return &exp, nil
}

func (q *queries) ListExpenditures(ctx context.Context, window store.Range) ([]domain.Expenditure, error) {
	clause, args := rangeClause("date_time", window)
	result := make([]domain.Expenditure, 0)
	err := q.selectAll(ctx, &result, `
		SELECT id, date_time, sr_no_daily, description, amount
		FROM expenditures
		WHERE `+clause+`
		ORDER BY sr_no_daily, id`, args...)
	if err != nil {
		return nil, wrapErr("list expenditures", err)
	}
	return result, nil
}

func (q *queries) MaxExpenditureSrNo(ctx context.Context, window store.Range) (int, error) {
	clause, args := rangeClause("date_time", window)
	var highest int
	if err := q.get(ctx, &highest, `SELECT COALESCE(MAX(sr_no_daily), 0) FROM expenditures WHERE `+clause, args...); err != nil {
		return 0, wrapErr("max expenditure sr no", err)
	}
	return highest, nil
}

func (q *queries) InsertExpenditure(ctx context.Context, exp domain.Expenditure) (int64, error) {
	return q.insertReturningID(ctx, "insert expenditure", `
		INSERT INTO expenditures (date_time, sr_no_daily, description, amount)
		VALUES (?, ?, ?, ?)`,
		dbTime(exp.DateTime), exp.SrNoDaily, exp.Description, exp.Amount,
	)
}

func (q *queries) UpdateExpenditure(ctx context.Context, exp domain.Expenditure) error {
	return q.execOne(ctx, "update expenditure", "expenditure", exp.ID,
		`UPDATE expenditures SET description = ?, amount = ? WHERE id = ?`, exp.Description, exp.Amount, exp.ID)
}

func (q *queries) DeleteExpenditure(ctx context.Context, id int64) error {
	return q.execOne(ctx, "delete expenditure", "expenditure", id, `DELETE FROM expenditures WHERE id = ?`, id)
}

const reminderColumns = `id, bill_id, car_number, customer_name, mobile_number, service_due_date, is_notified`

func (q *queries) GetReminder(ctx context.Context, id int64) (*domain.ServiceReminder, error) {
	var reminder domain.ServiceReminder
	if err := q.get(ctx, &reminder, `SELECT `+reminderColumns+` FROM service_reminders WHERE id = ?`, id); err != nil {
		return nil, wrapErr(fmt.Sprintf("get reminder %d", id), err)
	}
	return &reminder, nil
}

func (q *queries) ListDueReminders(ctx context.Context, asOf time.Time) ([]domain.ServiceReminder, error) {
	result := make([]domain.ServiceReminder, 0)
	err := q.selectAll(ctx, &result, `
		SELECT `+reminderColumns+`
		FROM service_reminders
		WHERE is_notified = ? AND service_due_date <= ?
		ORDER BY service_due_date, id`, false, dbTime(asOf))
	if err != nil {
		return nil, wrapErr("list due reminders", err)
	}
	return result, nil
}

func (q *queries) InsertReminder(ctx context.Context, reminder domain.ServiceReminder) (int64, error) {
	return q.insertReturningID(ctx, "insert reminder", `
		INSERT INTO service_reminders (bill_id, car_number, customer_name, mobile_number, service_due_date, is_notified)
		VALUES (?, ?, ?, ?, ?, ?)`,
		reminder.BillID, reminder.CarNumber, reminder.CustomerName, reminder.MobileNumber,
		dbTime(reminder.ServiceDueDate), reminder.Notified,
	)
}

func (q *queries) MarkReminderNotified(ctx context.Context, id int64) error {
	return q.execOne(ctx, "mark reminder notified", "reminder", id,
		`UPDATE service_reminders SET is_notified = ? WHERE id = ?`, true, id)
}

func (q *queries) GetBusinessProfile(ctx context.Context) (*domain.BusinessProfile, error) {
	var profile domain.BusinessProfile
	err := q.get(ctx, &profile, `
		SELECT name, address, phone, owner_name, logo_path, country_code
		FROM business_profile
		ORDER BY id
		LIMIT 1`)
	if err != nil {
		return nil, wrapErr("get business profile", err)
	}
	return &profile, nil
}

func (q *queries) SaveBusinessProfile(ctx context.Context, profile domain.BusinessProfile) error {
	_, err := q.exec(ctx, `
		INSERT INTO business_profile (id, name, address, phone, owner_name, logo_path, country_code)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			phone = excluded.phone,
			owner_name = excluded.owner_name,
			logo_path = excluded.logo_path,
			country_code = excluded.country_code`,
		profile.Name, profile.Address, profile.Phone, profile.OwnerName, profile.LogoPath, profile.CountryCode,
	)
	return wrapErr("save business profile", err)
}

func (q *queries) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	users := make([]domain.UserAccount, 0)
	err := q.selectAll(ctx, &users, `SELECT username, password_hash, role, active, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, wrapErr("list users", err)
	}
	return users, nil
}

func (q *queries) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := q.exec(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		user.Username, user.Password, user.Role, user.Active, dbTime(user.CreatedAt),
	)
	return wrapErr(fmt.Sprintf("create user %s", user.Username), err)
}

func (q *queries) UpdateUserPassword(ctx context.Context, username string, password string) error {
	return q.execOne(ctx, "update user password", "user", username,
		`UPDATE users SET password_hash = ? WHERE username = ?`, password, username)
}

func (q *queries) DeleteUser(ctx context.Context, username string) error {
	return q.execOne(ctx, "delete user", "user", username, `DELETE FROM users WHERE username = ?`, username)
}
