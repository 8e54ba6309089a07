package caja

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/taller-erp/taller-erp/internal/platform/db"
	"github.com/taller-erp/taller-erp/internal/shared"
)

const (
	constraintOneOpen     = "caja_one_open_per_branch"
	constraintOriginUniq  = "cajamovimiento_origen_uniq"
	constraintPettyBranch = "cajachica_id_sucursal_key"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	FindOpenRegister(ctx context.Context, branchID int64) (Register, error)
	ShareOpenRegister(ctx context.Context, branchID int64) (Register, error)
	LockOpenRegister(ctx context.Context, branchID int64) (Register, error)
	LockRegister(ctx context.Context, registerID int64) (Register, error)
	InsertRegister(ctx context.Context, reg Register) (Register, error)
	MarkRegisterClosed(ctx context.Context, registerID int64, at time.Time) error
	RegisterSequence(ctx context.Context, branchID, registerID int64) (int, error)
	InsertMovement(ctx context.Context, mov Movement) (Movement, error)
	FindMovementByOrigin(ctx context.Context, registerID int64, origin OriginKind, originID int64) (Movement, error)
	AggregateByKind(ctx context.Context, registerID int64) (KindTotals, error)
	AggregatePayments(ctx context.Context, registerID int64) ([]PaymentTotal, error)
	AggregatePurchases(ctx context.Context, branchID int64, since time.Time) (PurchaseTotals, error)
	InsertClosing(ctx context.Context, closing Closing) (Closing, error)
	GetPettyCash(ctx context.Context, branchID int64) (PettyCash, error)
	GetPettyCashForUpdate(ctx context.Context, branchID int64) (PettyCash, error)
	InsertPettyCash(ctx context.Context, pc PettyCash) (PettyCash, error)
	InsertPettyCashMovement(ctx context.Context, mov PettyCashMovement) (PettyCashMovement, error)
	UpdatePettyCashBalance(ctx context.Context, pettyCashID int64, balance decimal.Decimal) error
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries holds statements shared by pool and transaction scoped access.
type queries struct {
	db dbtx
}

// Repository persists caja data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	queries
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, queries: queries{db: pool}}
}

type txRepository struct {
	tx pgx.Tx
	queries
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("caja repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, queries: queries{db: tx}})
	})
}

// savepoint runs fn in a nested transaction so a constraint failure does not
// abort the enclosing one.
func (r *txRepository) savepoint(ctx context.Context, fn func(pgx.Tx) error) error {
	sp, err := r.tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(sp); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

const registerColumns = `c.id, c.id_sucursal, c.nombre, c.estado, c.saldo_apertura, COALESCE(c.id_usuario_apertura, 0),
COALESCE(u.nombre, ''), c.fecha_apertura, c.fecha_cierre`

func scanRegister(row pgx.Row) (Register, error) {
	var reg Register
	var state string
	err := row.Scan(&reg.ID, &reg.BranchID, &reg.Name, &state, &reg.OpeningBalance, &reg.OpenedBy, &reg.OpenedByName, &reg.OpenedAt, &reg.ClosedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return Register{}, ErrNoOpenRegister
		}
		return Register{}, err
	}
	reg.State = RegisterState(state)
	return reg, nil
}

func (r *txRepository) FindOpenRegister(ctx context.Context, branchID int64) (Register, error) {
	return scanRegister(r.tx.QueryRow(ctx, `SELECT `+registerColumns+`
FROM caja c LEFT JOIN usuario u ON u.id = c.id_usuario_apertura
WHERE c.id_sucursal=$1 AND c.estado='ABIERTA'`, branchID))
}

// ShareOpenRegister reads the open register under a share lock. A close
// holding the row blocks this read; once it commits the row no longer
// matches and ErrNoOpenRegister is returned.
func (r *txRepository) ShareOpenRegister(ctx context.Context, branchID int64) (Register, error) {
	return scanRegister(r.tx.QueryRow(ctx, `SELECT `+registerColumns+`
FROM caja c LEFT JOIN usuario u ON u.id = c.id_usuario_apertura
WHERE c.id_sucursal=$1 AND c.estado='ABIERTA'
FOR SHARE OF c`, branchID))
}

func (r *txRepository) LockRegister(ctx context.Context, registerID int64) (Register, error) {
	reg, err := scanRegister(r.tx.QueryRow(ctx, `SELECT `+registerColumns+`
FROM caja c LEFT JOIN usuario u ON u.id = c.id_usuario_apertura
WHERE c.id=$1
FOR SHARE OF c`, registerID))
	if errors.Is(err, ErrNoOpenRegister) {
		return Register{}, ErrRegisterNotFound
	}
	return reg, err
}

func (r *txRepository) LockOpenRegister(ctx context.Context, branchID int64) (Register, error) {
	return scanRegister(r.tx.QueryRow(ctx, `SELECT `+registerColumns+`
FROM caja c LEFT JOIN usuario u ON u.id = c.id_usuario_apertura
WHERE c.id_sucursal=$1 AND c.estado='ABIERTA'
FOR UPDATE OF c`, branchID))
}

func (r *txRepository) InsertRegister(ctx context.Context, reg Register) (Register, error) {
	err := r.savepoint(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `INSERT INTO caja (id_sucursal, nombre, estado, saldo_apertura, id_usuario_apertura, fecha_apertura, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id`, reg.BranchID, reg.Name, string(reg.State), reg.OpeningBalance, nullInt(reg.OpenedBy), reg.OpenedAt).Scan(&reg.ID)
	})
	if db.IsUniqueViolation(err, constraintOneOpen) {
		return Register{}, ErrOpenRegisterExists
	}
	if err != nil {
		return Register{}, err
	}
	return reg, nil
}

func (r *txRepository) MarkRegisterClosed(ctx context.Context, registerID int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE caja SET estado='CERRADA', fecha_cierre=$2, updated_at=NOW() WHERE id=$1 AND estado='ABIERTA'`, registerID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoOpenRegister
	}
	return nil
}

func (r *txRepository) RegisterSequence(ctx context.Context, branchID, registerID int64) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM caja WHERE id_sucursal=$1 AND id <= $2`, branchID, registerID).Scan(&seq)
	return seq, err
}

func (r *txRepository) InsertMovement(ctx context.Context, mov Movement) (Movement, error) {
	err := r.savepoint(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `INSERT INTO cajamovimiento (id_caja, id_usuario, id_medio_pago, tipo, monto, fecha, concepto, descripcion, origen_tipo, origen_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$2,NOW()) RETURNING id`, mov.RegisterID, nullInt(mov.UserID), nullInt(mov.PaymentMethodID), string(mov.Kind), mov.Amount, mov.OccurredAt,
			mov.Concept, mov.Description, string(mov.OriginKind), nullInt(mov.OriginID)).Scan(&mov.ID)
	})
	if db.IsUniqueViolation(err, constraintOriginUniq) {
		return Movement{}, ErrDuplicateOrigin
	}
	if err != nil {
		return Movement{}, err
	}
	return mov, nil
}

const movementColumns = `cm.id, cm.id_caja, COALESCE(cm.id_usuario, 0), COALESCE(u.nombre, ''), COALESCE(cm.id_medio_pago, 0),
cm.tipo, cm.monto, cm.fecha, cm.origen_tipo, COALESCE(cm.origen_id, 0), cm.concepto, cm.descripcion`

func scanMovement(row pgx.Row) (Movement, error) {
	var mov Movement
	var kind, origin string
	if err := row.Scan(&mov.ID, &mov.RegisterID, &mov.UserID, &mov.UserName, &mov.PaymentMethodID, &kind, &mov.Amount, &mov.OccurredAt, &origin, &mov.OriginID, &mov.Concept, &mov.Description); err != nil {
		return Movement{}, err
	}
	mov.Kind = MovementKind(kind)
	mov.OriginKind = OriginKind(origin)
	return mov, nil
}

func (r *txRepository) FindMovementByOrigin(ctx context.Context, registerID int64, origin OriginKind, originID int64) (Movement, error) {
	mov, err := scanMovement(r.tx.QueryRow(ctx, `SELECT `+movementColumns+`
FROM cajamovimiento cm LEFT JOIN usuario u ON u.id = cm.id_usuario
WHERE cm.id_caja=$1 AND cm.origen_tipo=$2 AND cm.origen_id=$3`, registerID, string(origin), originID))
	if db.IsNoRows(err) {
		return Movement{}, ErrMovementNotFound
	}
	return mov, err
}

// AggregateByKind sums manual register movements. Movements mirroring order
// payments are left out; those amounts come from AggregatePayments.
func (q queries) AggregateByKind(ctx context.Context, registerID int64) (KindTotals, error) {
	var totals KindTotals
	err := q.db.QueryRow(ctx, `SELECT
COALESCE(SUM(CASE WHEN tipo='INGRESO' THEN monto ELSE 0 END), 0),
COALESCE(SUM(CASE WHEN tipo='EGRESO' THEN monto ELSE 0 END), 0)
FROM cajamovimiento
WHERE id_caja=$1 AND origen_tipo <> $2`, registerID, string(OriginOrderPayment)).Scan(&totals.Ingresos, &totals.Egresos)
	return totals, err
}

// AggregatePayments sums order payments booked on a register per payment method.
func (q queries) AggregatePayments(ctx context.Context, registerID int64) ([]PaymentTotal, error) {
	rows, err := q.db.Query(ctx, `SELECT mp.id, mp.codigo, mp.nombre, mp.es_efectivo, COALESCE(SUM(op.importe), 0) AS total
FROM ordenpago op
JOIN mediopago mp ON mp.id = op.id_medio_pago
WHERE op.id_caja=$1
GROUP BY mp.id, mp.codigo, mp.nombre, mp.es_efectivo
ORDER BY total DESC, mp.id`, registerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := []PaymentTotal{}
	for rows.Next() {
		var t PaymentTotal
		if err := rows.Scan(&t.MethodID, &t.MethodCode, &t.MethodName, &t.IsCash, &t.Total); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// AggregatePurchases sums supplier purchases of the branch recorded since
// the given instant, split by cash and non-cash payment.
func (q queries) AggregatePurchases(ctx context.Context, branchID int64, since time.Time) (PurchaseTotals, error) {
	var totals PurchaseTotals
	err := q.db.QueryRow(ctx, `SELECT
COALESCE(SUM(CASE WHEN LOWER(metodo_pago) IN ('efectivo', 'cash') THEN total ELSE 0 END), 0),
COALESCE(SUM(CASE WHEN metodo_pago IS NOT NULL AND LOWER(metodo_pago) NOT IN ('efectivo', 'cash') THEN total ELSE 0 END), 0)
FROM compracabecera
WHERE id_sucursal=$1 AND created_at >= $2`, branchID, since).Scan(&totals.Cash, &totals.Card)
	return totals, err
}

func (r *txRepository) InsertClosing(ctx context.Context, c Closing) (Closing, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO cajacierre (id_caja, id_usuario, fecha, saldo_inicial, saldo_teorico, saldo_real, diferencia, a_caja_chica, apertura_siguiente, clasificacion, descripcion, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW()) RETURNING id`, c.RegisterID, nullInt(c.UserID), c.ClosedAt, c.OpeningBalance, c.TheoreticalBalance, c.CountedBalance, c.Difference,
		c.PettyCashAmount, c.NextOpeningBalance, string(c.Classification), c.Description).Scan(&c.ID)
	if err != nil {
		return Closing{}, err
	}
	return c, nil
}

const pettyCashColumns = `id, id_sucursal, nombre, saldo_actual, updated_at`

func scanPettyCash(row pgx.Row) (PettyCash, error) {
	var pc PettyCash
	if err := row.Scan(&pc.ID, &pc.BranchID, &pc.Name, &pc.CurrentBalance, &pc.UpdatedAt); err != nil {
		if db.IsNoRows(err) {
			return PettyCash{}, ErrPettyCashNotFound
		}
		return PettyCash{}, err
	}
	return pc, nil
}

func (r *txRepository) GetPettyCash(ctx context.Context, branchID int64) (PettyCash, error) {
	return scanPettyCash(r.tx.QueryRow(ctx, `SELECT `+pettyCashColumns+` FROM cajachica WHERE id_sucursal=$1`, branchID))
}

func (r *txRepository) GetPettyCashForUpdate(ctx context.Context, branchID int64) (PettyCash, error) {
	return scanPettyCash(r.tx.QueryRow(ctx, `SELECT `+pettyCashColumns+` FROM cajachica WHERE id_sucursal=$1 FOR UPDATE`, branchID))
}

func (r *txRepository) InsertPettyCash(ctx context.Context, pc PettyCash) (PettyCash, error) {
	err := r.savepoint(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `INSERT INTO cajachica (id_sucursal, nombre, saldo_actual, created_at, updated_at)
VALUES ($1,$2,$3,NOW(),NOW()) RETURNING id, updated_at`, pc.BranchID, pc.Name, pc.CurrentBalance).Scan(&pc.ID, &pc.UpdatedAt)
	})
	if db.IsUniqueViolation(err, constraintPettyBranch) {
		return PettyCash{}, ErrPettyCashExists
	}
	if err != nil {
		return PettyCash{}, err
	}
	return pc, nil
}

func (r *txRepository) InsertPettyCashMovement(ctx context.Context, mov PettyCashMovement) (PettyCashMovement, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO cajachicamovimiento (id_cajachica, id_usuario, tipo, monto, fecha, descripcion, origen_tipo, origen_id, id_cajamovimiento, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$2,NOW()) RETURNING id`, mov.PettyCashID, nullInt(mov.UserID), string(mov.Kind), mov.Amount, mov.OccurredAt, mov.Description,
		string(mov.OriginKind), nullInt(mov.OriginID), nullInt(mov.RegisterMovementID)).Scan(&mov.ID)
	if err != nil {
		return PettyCashMovement{}, err
	}
	return mov, nil
}

func (r *txRepository) UpdatePettyCashBalance(ctx context.Context, pettyCashID int64, balance decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE cajachica SET saldo_actual=$2, updated_at=NOW() WHERE id=$1`, pettyCashID, balance)
	if db.IsCheckViolation(err) {
		return ErrInsufficientFunds
	}
	return err
}

// ListMovements returns register movements of every register of the branch.
func (r *Repository) ListMovements(ctx context.Context, branchID int64, filter MovementFilter) ([]Movement, int, error) {
	page := shared.NewPageRequest(filter.Page, filter.PerPage)
	const where = `WHERE c.id_sucursal=$1 AND ($2::text = '' OR cm.tipo=$2)
AND cm.fecha >= COALESCE($3::timestamptz, '-infinity') AND cm.fecha <= COALESCE($4::timestamptz, 'infinity')`
	args := []any{branchID, string(filter.Kind), nullTime(filter.From), nullTime(filter.To)}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cajamovimiento cm JOIN caja c ON c.id = cm.id_caja `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+`
FROM cajamovimiento cm
JOIN caja c ON c.id = cm.id_caja
LEFT JOIN usuario u ON u.id = cm.id_usuario
`+where+`
ORDER BY cm.fecha DESC, cm.id DESC
LIMIT $5 OFFSET $6`, append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []Movement{}
	for rows.Next() {
		mov, err := scanMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, mov)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

const pettyMovementColumns = `ccm.id, ccm.id_cajachica, COALESCE(ccm.id_usuario, 0), COALESCE(u.nombre, ''), ccm.tipo, ccm.monto, ccm.fecha,
ccm.descripcion, ccm.origen_tipo, COALESCE(ccm.origen_id, 0), COALESCE(ccm.id_cajamovimiento, 0)`

func scanPettyMovement(row pgx.Row) (PettyCashMovement, error) {
	var mov PettyCashMovement
	var kind, origin string
	if err := row.Scan(&mov.ID, &mov.PettyCashID, &mov.UserID, &mov.UserName, &kind, &mov.Amount, &mov.OccurredAt, &mov.Description, &origin, &mov.OriginID, &mov.RegisterMovementID); err != nil {
		return PettyCashMovement{}, err
	}
	mov.Kind = MovementKind(kind)
	mov.OriginKind = OriginKind(origin)
	return mov, nil
}

// ListPettyCashMovements returns the movement log of a petty-cash account.
func (r *Repository) ListPettyCashMovements(ctx context.Context, pettyCashID int64, filter MovementFilter) ([]PettyCashMovement, int, error) {
	page := shared.NewPageRequest(filter.Page, filter.PerPage)
	const where = `WHERE ccm.id_cajachica=$1 AND ($2::text = '' OR ccm.tipo=$2)
AND ccm.fecha >= COALESCE($3::timestamptz, '-infinity') AND ccm.fecha <= COALESCE($4::timestamptz, 'infinity')`
	args := []any{pettyCashID, string(filter.Kind), nullTime(filter.From), nullTime(filter.To)}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cajachicamovimiento ccm `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+pettyMovementColumns+`
FROM cajachicamovimiento ccm
LEFT JOIN usuario u ON u.id = ccm.id_usuario
`+where+`
ORDER BY ccm.fecha DESC, ccm.id DESC
LIMIT $5 OFFSET $6`, append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []PettyCashMovement{}
	for rows.Next() {
		mov, err := scanPettyMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, mov)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// LastPettyCashMovement returns the newest movement or nil when the log is empty.
func (r *Repository) LastPettyCashMovement(ctx context.Context, pettyCashID int64) (*PettyCashMovement, error) {
	if pettyCashID <= 0 {
		return nil, nil
	}
	mov, err := scanPettyMovement(r.pool.QueryRow(ctx, `SELECT `+pettyMovementColumns+`
FROM cajachicamovimiento ccm
LEFT JOIN usuario u ON u.id = ccm.id_usuario
WHERE ccm.id_cajachica=$1
ORDER BY ccm.fecha DESC, ccm.id DESC
LIMIT 1`, pettyCashID))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mov, nil
}

const closingColumns = `cc.id, cc.id_caja, c.id_sucursal, c.nombre, COALESCE(cc.id_usuario, 0), COALESCE(uc.nombre, ''), COALESCE(ua.nombre, ''),
c.fecha_apertura, cc.fecha, cc.saldo_inicial, cc.saldo_teorico, cc.saldo_real, cc.diferencia, cc.a_caja_chica, cc.apertura_siguiente,
cc.clasificacion, cc.descripcion, COALESCE((SELECT SUM(op.importe) FROM ordenpago op WHERE op.id_caja = c.id), 0)`

const closingFrom = `FROM cajacierre cc
JOIN caja c ON c.id = cc.id_caja
LEFT JOIN usuario uc ON uc.id = cc.id_usuario
LEFT JOIN usuario ua ON ua.id = c.id_usuario_apertura`

func scanClosing(row pgx.Row) (Closing, error) {
	var c Closing
	var class string
	err := row.Scan(&c.ID, &c.RegisterID, &c.BranchID, &c.RegisterName, &c.UserID, &c.ClosedByName, &c.OpenedByName,
		&c.OpenedAt, &c.ClosedAt, &c.OpeningBalance, &c.TheoreticalBalance, &c.CountedBalance, &c.Difference, &c.PettyCashAmount,
		&c.NextOpeningBalance, &class, &c.Description, &c.TotalInvoiced)
	if err != nil {
		return Closing{}, err
	}
	c.Classification = Classification(class)
	return c, nil
}

// ListClosings returns closings of the branch, newest first.
func (r *Repository) ListClosings(ctx context.Context, branchID int64, page shared.PageRequest) ([]Closing, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cajacierre cc JOIN caja c ON c.id = cc.id_caja WHERE c.id_sucursal=$1`, branchID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+closingColumns+`
`+closingFrom+`
WHERE c.id_sucursal=$1
ORDER BY cc.fecha DESC, cc.id DESC
LIMIT $2 OFFSET $3`, branchID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []Closing{}
	for rows.Next() {
		c, err := scanClosing(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetClosingDetail loads a closing with the figures of its register period.
func (r *Repository) GetClosingDetail(ctx context.Context, id int64) (ClosingDetail, error) {
	closing, err := scanClosing(r.pool.QueryRow(ctx, `SELECT `+closingColumns+`
`+closingFrom+`
WHERE cc.id=$1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return ClosingDetail{}, ErrClosingNotFound
		}
		return ClosingDetail{}, err
	}
	detail := ClosingDetail{Closing: closing}
	if detail.Totals, err = r.AggregateByKind(ctx, closing.RegisterID); err != nil {
		return ClosingDetail{}, err
	}
	if detail.Payments, err = r.AggregatePayments(ctx, closing.RegisterID); err != nil {
		return ClosingDetail{}, err
	}
	err = r.pool.QueryRow(ctx, `SELECT COALESCE(ccm.id, 0)
FROM cajamovimiento cm
LEFT JOIN cajachicamovimiento ccm ON ccm.id_cajamovimiento = cm.id
WHERE cm.id_caja=$1 AND cm.origen_tipo=$2 AND cm.origen_id=$3`, closing.RegisterID, string(OriginClosing), closing.ID).Scan(&detail.PettyCashMovementID)
	if err != nil && !db.IsNoRows(err) {
		return ClosingDetail{}, err
	}
	return detail, nil
}

// PettyCashDrift lists accounts whose stored balance differs from the signed
// sum of their movements. branchID zero scans every branch.
func (r *Repository) PettyCashDrift(ctx context.Context, branchID int64) ([]Drift, error) {
	rows, err := r.pool.Query(ctx, `SELECT cc.id, cc.id_sucursal, cc.saldo_actual,
COALESCE(SUM(CASE WHEN m.tipo='EGRESO' THEN -m.monto ELSE m.monto END), 0) AS computed
FROM cajachica cc
LEFT JOIN cajachicamovimiento m ON m.id_cajachica = cc.id
WHERE ($1::bigint = 0 OR cc.id_sucursal=$1)
GROUP BY cc.id, cc.id_sucursal, cc.saldo_actual
HAVING cc.saldo_actual <> COALESCE(SUM(CASE WHEN m.tipo='EGRESO' THEN -m.monto ELSE m.monto END), 0)
ORDER BY cc.id_sucursal`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	drifts := []Drift{}
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.PettyCashID, &d.BranchID, &d.Stored, &d.Computed); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
