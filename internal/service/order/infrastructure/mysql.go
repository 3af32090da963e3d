package infrastructure

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/service/order/domain"
)

// MySQL 错误码
const (
	errLockWaitTimeout uint16 = 1205
	errDeadlock        uint16 = 1213
)

// MySQLDSN 根据配置生成 DSN。
// innodb_lock_wait_timeout 作为会话变量在每个连接建立时设置，限制库存行锁的等待时间。
func MySQLDSN(cfg bootstrap.MySQLConfig) string {
	c := mysql.NewConfig()
	c.Net = "tcp"
	c.Addr = cfg.Addr
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.DBName = cfg.Database
	c.ParseTime = true
	c.Loc = time.UTC
	c.Params = map[string]string{
		"innodb_lock_wait_timeout": strconv.Itoa(int(cfg.LockWaitTimeout / time.Second)),
	}
	return c.FormatDSN()
}

// OpenMySQL 创建 GORM 连接池
func OpenMySQL(cfg bootstrap.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.New(gormmysql.Config{DSN: MySQLDSN(cfg)}), &gorm.Config{
		// 事务由下单引擎显式管理
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
		Logger:                 gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// AutoMigrate 创建或更新 orders、order_lines、stock 表
func AutoMigrate(db *gorm.DB) error {
	return errors.Wrap(db.AutoMigrate(&OrderModel{}, &OrderLineModel{}, &StockModel{}), "auto migrate")
}

// GormStore 是 domain.Store 的 MySQL 实现
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Begin(ctx context.Context) (domain.Tx, error) {
	tx := s.db.WithContext(ctx).Begin(&sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if tx.Error != nil {
		return nil, classifyError("begin", tx.Error)
	}
	return &gormTx{db: tx, locked: make(map[domain.InventoryKey]struct{})}, nil
}

type gormTx struct {
	db     *gorm.DB
	locked map[domain.InventoryKey]struct{}
	closed bool
}

func (t *gormTx) InsertOrders(ctx context.Context, orders []domain.Order) ([]string, error) {
	if t.closed {
		return nil, domain.ErrTransactionClosed
	}
	models := make([]OrderModel, 0, len(orders))
	submitted := make([]string, 0, len(orders))
	for _, o := range orders {
		models = append(models, FromDomainOrder(o))
		submitted = append(submitted, o.ID)
	}

	// 一条 INSERT 写入所有订单头
	if err := t.db.WithContext(ctx).Create(&models).Error; err != nil {
		return nil, classifyError("insert orders", err)
	}

	// 在同一事务内回读实际写入的订单 ID
	var persisted []string
	err := t.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("id IN ?", submitted).
		Pluck("id", &persisted).Error
	if err != nil {
		return nil, classifyError("read back orders", err)
	}
	return persisted, nil
}

func (t *gormTx) InsertOrderLines(ctx context.Context, lines []domain.OrderLine) error {
	if t.closed {
		return domain.ErrTransactionClosed
	}
	if len(lines) == 0 {
		return nil
	}
	models := make([]OrderLineModel, 0, len(lines))
	for _, l := range lines {
		models = append(models, FromDomainOrderLine(l))
	}
	if err := t.db.WithContext(ctx).CreateInBatches(&models, 500).Error; err != nil {
		return classifyError("insert order lines", err)
	}
	return nil
}

// LockStock 执行 SELECT ... FOR UPDATE
func (t *gormTx) LockStock(ctx context.Context, key domain.InventoryKey) (domain.StockRecord, error) {
	if t.closed {
		return domain.StockRecord{}, domain.ErrTransactionClosed
	}
	var m StockModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND shop_id = ? AND size = ?", key.ProductID, key.ShopID, key.Size).
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.StockRecord{}, domain.ErrStockNotFound
		}
		return domain.StockRecord{}, classifyError("lock stock "+key.String(), err)
	}
	t.locked[key] = struct{}{}
	return ToDomainStock(&m), nil
}

// DecrementStock 用一条 UPDATE ... CASE 完成所有扣减。
// WHERE 中再次校验扣减后不为负，受影响行数不符时整体失败。
func (t *gormTx) DecrementStock(ctx context.Context, decrements []domain.StockDecrement) error {
	if t.closed {
		return domain.ErrTransactionClosed
	}
	if len(decrements) == 0 {
		return nil
	}
	for _, d := range decrements {
		if _, ok := t.locked[d.Key]; !ok {
			return errors.Wrapf(domain.ErrLockNotHeld, "decrement %s", d.Key)
		}
	}

	stmt, args := buildDecrementStatement(decrements)
	res := t.db.WithContext(ctx).Exec(stmt, args...)
	if res.Error != nil {
		return classifyError("decrement stock", res.Error)
	}
	if res.RowsAffected != int64(len(decrements)) {
		return errors.Wrapf(domain.ErrNegativeStockWrite, "decrement stock: expected %d rows, updated %d", len(decrements), res.RowsAffected)
	}
	return nil
}

func buildDecrementStatement(decrements []domain.StockDecrement) (string, []any) {
	var caseExpr strings.Builder
	caseArgs := make([]any, 0, len(decrements)*4)
	caseExpr.WriteString("CASE")
	for _, d := range decrements {
		caseExpr.WriteString(" WHEN product_id = ? AND shop_id = ? AND size = ? THEN ?")
		caseArgs = append(caseArgs, d.Key.ProductID, d.Key.ShopID, d.Key.Size, d.Quantity)
	}
	caseExpr.WriteString(" ELSE 0 END")

	tuples := make([]string, 0, len(decrements))
	keyArgs := make([]any, 0, len(decrements)*3)
	for _, d := range decrements {
		tuples = append(tuples, "(?, ?, ?)")
		keyArgs = append(keyArgs, d.Key.ProductID, d.Key.ShopID, d.Key.Size)
	}

	stmt := "UPDATE stock SET quantity = quantity - (" + caseExpr.String() + ")" +
		" WHERE (product_id, shop_id, size) IN (" + strings.Join(tuples, ", ") + ")" +
		" AND quantity >= (" + caseExpr.String() + ")"

	args := make([]any, 0, len(caseArgs)*2+len(keyArgs))
	args = append(args, caseArgs...)
	args = append(args, keyArgs...)
	args = append(args, caseArgs...)
	return stmt, args
}

func (t *gormTx) Commit() error {
	if t.closed {
		return domain.ErrTransactionClosed
	}
	t.closed = true
	if err := t.db.Commit().Error; err != nil {
		return classifyError("commit", err)
	}
	return nil
}

// Rollback 在事务已结束（包括提交失败）时为空操作
func (t *gormTx) Rollback() error {
	if t.closed {
		return nil
	}
	t.closed = true
	err := t.db.Rollback().Error
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return classifyError("rollback", err)
	}
	return nil
}

// classifyError 锁等待超时与死锁转换为可重试的事务错误，其余错误附加操作信息
func classifyError(op string, err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errLockWaitTimeout, errDeadlock:
			return &domain.TransactionError{Op: op, Retryable: true, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &domain.TransactionError{Op: op, Err: err}
	}
	return errors.Wrap(err, op)
}
