package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/leoygitty/GSR-App/internal/models"
	"github.com/sirupsen/logrus"
)

// VaultItemRepository определяет методы для работы с предметами хранилища.
// Все методы фильтруют по владельцу.
type VaultItemRepository interface {
	List(ctx context.Context, userID string, filter models.VaultItemFilter) ([]models.VaultItem, error)
	SectionCounts(ctx context.Context, userID string) ([]models.SectionCount, error)
	Create(ctx context.Context, userID string, fields models.VaultItemFields) (*models.VaultItem, error)
	Update(ctx context.Context, userID string, id int64, patch models.VaultItemPatch) (*models.VaultItem, error)
	Delete(ctx context.Context, userID string, id int64) error
	Reorder(ctx context.Context, userID string, moves []models.ShelfMove) (int, error)
}

// ErrItemNotFound - предмета нет или он принадлежит другому пользователю.
var ErrItemNotFound = errors.New("предмет хранилища не найден")

// Слоты без номера сортируются в конец.
const unslottedOrder = 999999

const itemColumns = `id, user_id, label, metal, item_type, weight_value, weight_unit, purity, premium_pct,
	coalesce(notes, '') AS notes, coalesce(source, '') AS source,
	coalesce(shelf_section, 'Main') AS shelf_section, shelf_slot, accent, qty, created_at`

// postgresVaultItemRepository реализует VaultItemRepository для PostgreSQL.
type postgresVaultItemRepository struct {
	db  *sqlx.DB
	log logrus.FieldLogger
}

// NewPostgresVaultItemRepository создает репозиторий предметов хранилища.
func NewPostgresVaultItemRepository(db *sqlx.DB, log logrus.FieldLogger) VaultItemRepository {
	return &postgresVaultItemRepository{db: db, log: log}
}

// List возвращает предметы пользователя: по секции, затем по слоту
// (без слота - в конце), затем новые первыми.
func (r *postgresVaultItemRepository) List(
	ctx context.Context,
	userID string,
	filter models.VaultItemFilter,
) ([]models.VaultItem, error) {
	var sb strings.Builder
	args := []any{userID}

	sb.WriteString(`SELECT ` + itemColumns + ` FROM vault_items WHERE user_id = $1`)
	if filter.Section != "" {
		args = append(args, filter.Section)
		sb.WriteString(` AND coalesce(shelf_section, 'Main') = $` + strconv.Itoa(len(args)))
	}
	if filter.ItemType != "" {
		args = append(args, filter.ItemType)
		sb.WriteString(` AND item_type = $` + strconv.Itoa(len(args)))
	}
	args = append(args, filter.Limit)
	sb.WriteString(fmt.Sprintf(
		` ORDER BY coalesce(shelf_section, 'Main') ASC, coalesce(shelf_slot, %d) ASC, created_at DESC LIMIT $%d`,
		unslottedOrder, len(args)))

	items := make([]models.VaultItem, 0)
	if err := r.db.SelectContext(ctx, &items, sb.String(), args...); err != nil {
		r.log.WithError(err).WithField("user_id", userID).Error("[VaultItemRepo] Ошибка чтения списка предметов")
		return nil, fmt.Errorf("ошибка выполнения запроса на получение предметов: %w", err)
	}
	return items, nil
}

// SectionCounts возвращает количество предметов по секциям полки.
func (r *postgresVaultItemRepository) SectionCounts(ctx context.Context, userID string) ([]models.SectionCount, error) {
	query := `SELECT coalesce(shelf_section, 'Main') AS section, count(*) AS count
	          FROM vault_items WHERE user_id = $1
	          GROUP BY coalesce(shelf_section, 'Main')
	          ORDER BY section ASC`

	counts := make([]models.SectionCount, 0)
	if err := r.db.SelectContext(ctx, &counts, query, userID); err != nil {
		r.log.WithError(err).WithField("user_id", userID).Error("[VaultItemRepo] Ошибка подсчета секций")
		return nil, fmt.Errorf("ошибка выполнения запроса на подсчет секций: %w", err)
	}
	return counts, nil
}

// Create вставляет предмет. Если слот не задан, назначается следующий
// после максимального в секции пользователя (0 для пустой секции).
func (r *postgresVaultItemRepository) Create(
	ctx context.Context,
	userID string,
	f models.VaultItemFields,
) (*models.VaultItem, error) {
	query := `INSERT INTO vault_items
		(user_id, label, metal, item_type, weight_value, weight_unit, purity, premium_pct,
		 notes, source, shelf_section, shelf_slot, accent, qty)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			coalesce($12::int, (
				SELECT coalesce(max(shelf_slot), -1) + 1 FROM vault_items
				WHERE user_id = $1 AND coalesce(shelf_section, 'Main') = $11 AND shelf_slot IS NOT NULL
			)),
			$13, $14)
		RETURNING ` + itemColumns

	var item models.VaultItem
	err := r.db.GetContext(ctx, &item, query,
		userID, f.Label, f.Metal, f.ItemType, f.WeightValue, f.WeightUnit, f.Purity, f.PremiumPct,
		f.Notes, f.Source, f.ShelfSection, f.ShelfSlot, f.Accent, f.Qty,
	)
	if err != nil {
		r.log.WithError(err).WithField("user_id", userID).Error("[VaultItemRepo] Ошибка создания предмета")
		return nil, fmt.Errorf("ошибка выполнения запроса на создание предмета: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"item_id": item.ID,
		"section": item.ShelfSection,
	}).Info("[VaultItemRepo] Предмет создан")
	return &item, nil
}

// Update меняет только переданные поля. ErrItemNotFound, если предмет
// не найден среди предметов пользователя.
func (r *postgresVaultItemRepository) Update(
	ctx context.Context,
	userID string,
	id int64,
	p models.VaultItemPatch,
) (*models.VaultItem, error) {
	sets, args := patchAssignments(p)
	if len(sets) == 0 {
		return nil, errors.New("нет полей для обновления")
	}
	args = append(args, id, userID)
	query := fmt.Sprintf(`UPDATE vault_items SET %s WHERE id = $%d AND user_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args)-1, len(args), itemColumns)

	var item models.VaultItem
	if err := r.db.GetContext(ctx, &item, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		r.log.WithError(err).WithField("item_id", id).Error("[VaultItemRepo] Ошибка обновления предмета")
		return nil, fmt.Errorf("ошибка выполнения запроса на обновление предмета: %w", err)
	}
	return &item, nil
}

// Delete удаляет предмет пользователя. ErrItemNotFound, если удалять нечего.
func (r *postgresVaultItemRepository) Delete(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM vault_items WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		r.log.WithError(err).WithField("item_id", id).Error("[VaultItemRepo] Ошибка удаления предмета")
		return fmt.Errorf("ошибка выполнения запроса на удаление предмета: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения числа удаленных строк: %w", err)
	}
	if affected == 0 {
		return ErrItemNotFound
	}

	r.log.WithField("item_id", id).Info("[VaultItemRepo] Предмет удален")
	return nil
}

// Reorder применяет перемещения одной транзакцией. Чужие и несуществующие
// предметы пропускаются; возвращается число реально измененных строк.
func (r *postgresVaultItemRepository) Reorder(ctx context.Context, userID string, moves []models.ShelfMove) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.log.WithError(rbErr).Warn("[VaultItemRepo] Ошибка отката транзакции")
		}
	}()

	updated := 0
	for _, m := range moves {
		var sets []string
		var args []any
		if m.ShelfSection != nil {
			args = append(args, *m.ShelfSection)
			sets = append(sets, "shelf_section = $"+strconv.Itoa(len(args)))
		}
		if m.SetShelfSlot {
			args = append(args, m.ShelfSlot)
			sets = append(sets, "shelf_slot = $"+strconv.Itoa(len(args)))
		}
		if len(sets) == 0 {
			continue
		}
		args = append(args, m.ID, userID)
		query := fmt.Sprintf(`UPDATE vault_items SET %s WHERE id = $%d AND user_id = $%d`,
			strings.Join(sets, ", "), len(args)-1, len(args))

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("ошибка перемещения предмета %d: %w", m.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"user_id": userID,
		"moves":   len(moves),
		"updated": updated,
	}).Info("[VaultItemRepo] Перестановка выполнена")
	return updated, nil
}

// patchAssignments собирает SET-часть UPDATE в фиксированном порядке полей.
func patchAssignments(p models.VaultItemPatch) ([]string, []any) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}

	if p.Label != nil {
		add("label", *p.Label)
	}
	if p.ShelfSection != nil {
		add("shelf_section", *p.ShelfSection)
	}
	if p.SetShelfSlot {
		add("shelf_slot", p.ShelfSlot)
	}
	if p.Accent != nil {
		add("accent", *p.Accent)
	}
	if p.Notes != nil {
		add("notes", *p.Notes)
	}
	if p.SetPremiumPct {
		add("premium_pct", p.PremiumPct)
	}
	if p.Qty != nil {
		add("qty", *p.Qty)
	}
	return sets, args
}
