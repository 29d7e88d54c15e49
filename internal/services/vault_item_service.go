package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/leoygitty/GSR-App/internal/apperr"
	"github.com/leoygitty/GSR-App/internal/models"
	"github.com/leoygitty/GSR-App/internal/repository"
	"github.com/sirupsen/logrus"
)

// Ограничения предметов хранилища.
const (
	DefaultListLimit = 200
	MaxListLimit     = 500
	MaxReorderMoves  = 500
	MaxQty           = 100000
	MaxShelfSlot     = 999999
	MaxPremiumPct    = 500

	maxLabelLen   = 180
	maxNotesLen   = 2000
	maxSourceLen  = 32
	maxSectionLen = 60
	maxAccentLen  = 24
	maxTokenLen   = 32
	maxUnitLen    = 8

	defaultSource = "manual"
)

var (
	allowedMetals = mapset.NewThreadUnsafeSet(models.MetalGold, models.MetalSilver, models.MetalPlatinum)
	allowedTypes  = mapset.NewThreadUnsafeSet(
		models.ItemTypeBullion, models.ItemTypeCoin, models.ItemTypeBar, models.ItemTypeJewelry, models.ItemTypeOther)
	allowedUnits = mapset.NewThreadUnsafeSet(models.UnitGram, models.UnitTroyOunce)
)

// VaultListQuery - параметры списка предметов.
type VaultListQuery struct {
	Section string
	Type    string
	Limit   int
}

// VaultItemService - операции с предметами хранилища пользователя.
// Все операции выполняются от имени проверенного пользователя.
type VaultItemService interface {
	List(ctx context.Context, userID string, q VaultListQuery) ([]models.VaultItem, models.VaultListMeta, error)
	Create(ctx context.Context, userID string, req models.CreateVaultItemRequest) (*models.VaultItem, error)
	Update(ctx context.Context, userID string, id int64, req models.UpdateVaultItemRequest) (*models.VaultItem, error)
	Delete(ctx context.Context, userID string, id int64) error
	Reorder(ctx context.Context, userID string, req models.ReorderRequest) (int, error)
}

var _ VaultItemService = (*vaultItemService)(nil)

type vaultItemService struct {
	repo repository.VaultItemRepository
	log  logrus.FieldLogger
}

// NewVaultItemService создает сервис предметов хранилища.
func NewVaultItemService(repo repository.VaultItemRepository, log logrus.FieldLogger) VaultItemService {
	return &vaultItemService{repo: repo, log: log}
}

// List возвращает предметы пользователя и разбивку по секциям.
func (s *vaultItemService) List(
	ctx context.Context,
	userID string,
	q VaultListQuery,
) ([]models.VaultItem, models.VaultListMeta, error) {
	filter := models.VaultItemFilter{
		Section:  cleanText(q.Section, maxSectionLen),
		ItemType: strings.ToLower(cleanText(q.Type, maxTokenLen)),
		Limit:    clampInt(q.Limit, 1, MaxListLimit),
	}
	if filter.ItemType != "" && !allowedTypes.Contains(filter.ItemType) {
		return nil, models.VaultListMeta{}, apperr.Validation("Invalid type filter")
	}

	items, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("[VaultService] Ошибка чтения предметов")
		return nil, models.VaultListMeta{}, apperr.Storage("failed to list items", err)
	}
	sections, err := s.repo.SectionCounts(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("[VaultService] Ошибка подсчета секций")
		return nil, models.VaultListMeta{}, apperr.Storage("failed to count sections", err)
	}
	if items == nil {
		items = []models.VaultItem{}
	}
	if sections == nil {
		sections = []models.SectionCount{}
	}

	return items, models.VaultListMeta{Count: len(items), Limit: filter.Limit, Sections: sections}, nil
}

// Create проверяет поля, подставляет значения по умолчанию и создает предмет.
func (s *vaultItemService) Create(
	ctx context.Context,
	userID string,
	req models.CreateVaultItemRequest,
) (*models.VaultItem, error) {
	fields, err := validateCreate(req)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.Create(ctx, userID, fields)
	if err != nil {
		return nil, s.storageError(err, userID, "failed to create item")
	}

	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"item_id": item.ID,
		"section": item.ShelfSection,
	}).Info("[VaultService] Предмет создан")
	return item, nil
}

// Update применяет частичное обновление. Чужой или несуществующий предмет - NotFound.
func (s *vaultItemService) Update(
	ctx context.Context,
	userID string,
	id int64,
	req models.UpdateVaultItemRequest,
) (*models.VaultItem, error) {
	if id <= 0 {
		return nil, apperr.Validation("Missing id")
	}
	patch, err := validateUpdate(req)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.Update(ctx, userID, id, patch)
	if errors.Is(err, repository.ErrItemNotFound) {
		return nil, apperr.NotFound("Item not found", "")
	}
	if err != nil {
		return nil, s.storageError(err, userID, "failed to update item")
	}
	return item, nil
}

// Delete удаляет предмет пользователя.
func (s *vaultItemService) Delete(ctx context.Context, userID string, id int64) error {
	if id <= 0 {
		return apperr.Validation("Missing id")
	}
	err := s.repo.Delete(ctx, userID, id)
	if errors.Is(err, repository.ErrItemNotFound) {
		return apperr.NotFound("Item not found", "")
	}
	if err != nil {
		return s.storageError(err, userID, "failed to delete item")
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "item_id": id}).Info("[VaultService] Предмет удален")
	return nil
}

// Reorder переносит предметы по полкам. Обрабатываются первые MaxReorderMoves
// перемещений; чужие и неизвестные id пропускаются.
func (s *vaultItemService) Reorder(ctx context.Context, userID string, req models.ReorderRequest) (int, error) {
	if len(req.Moves) == 0 {
		return 0, apperr.Validation("moves[] required")
	}
	raw := req.Moves
	if len(raw) > MaxReorderMoves {
		raw = raw[:MaxReorderMoves]
	}

	moves := make([]models.ShelfMove, 0, len(raw))
	for _, m := range raw {
		if m.ID <= 0 {
			continue
		}
		move := models.ShelfMove{ID: int64(m.ID)}
		if sec := cleanText(m.ShelfSection.Value, maxSectionLen); m.ShelfSection.Set && !m.ShelfSection.Null && sec != "" {
			move.ShelfSection = &sec
		}
		if m.ShelfSlot.Set {
			move.SetShelfSlot = true
			if !m.ShelfSlot.Null {
				slot := clampInt(m.ShelfSlot.Value, 0, MaxShelfSlot)
				move.ShelfSlot = &slot
			}
		}
		moves = append(moves, move)
	}

	updated, err := s.repo.Reorder(ctx, userID, moves)
	if err != nil {
		return 0, s.storageError(err, userID, "failed to reorder items")
	}
	return updated, nil
}

func (s *vaultItemService) storageError(err error, userID, msg string) error {
	if repository.IsConstraintError(err) {
		s.log.WithError(err).WithField("user_id", userID).Warn("[VaultService] Нарушено ограничение БД")
		return apperr.Validation("Invalid item fields")
	}
	s.log.WithError(err).WithField("user_id", userID).Error("[VaultService] Ошибка репозитория")
	return apperr.Storage(msg, err)
}

// validateCreate проверяет тело создания и подставляет значения по умолчанию.
func validateCreate(req models.CreateVaultItemRequest) (models.VaultItemFields, error) {
	f := models.VaultItemFields{
		Label:      cleanText(req.Label, maxLabelLen),
		Metal:      strings.ToLower(cleanText(req.Metal, maxTokenLen)),
		ItemType:   strings.ToLower(cleanText(req.ItemType, maxTokenLen)),
		WeightUnit: strings.ToLower(cleanText(req.WeightUnit, maxUnitLen)),
		Notes:      cleanText(req.Notes, maxNotesLen),
		Source:     cleanText(req.Source, maxSourceLen),
		PremiumPct: req.PremiumPct.Ptr(),
		Qty:        1,
	}

	if f.Label == "" {
		return f, apperr.Validation("Label required")
	}
	if !allowedMetals.Contains(f.Metal) {
		return f, apperr.Validation("Invalid metal")
	}
	if !allowedTypes.Contains(f.ItemType) {
		f.ItemType = models.ItemTypeOther
	}
	if !allowedUnits.Contains(f.WeightUnit) {
		return f, apperr.Validation("Invalid weight_unit")
	}
	weight := req.WeightValue.Ptr()
	if weight == nil || !(*weight > 0) || math.IsInf(*weight, 0) {
		return f, apperr.Validation("weight_value must be > 0")
	}
	f.WeightValue = *weight
	purity := req.Purity.Ptr()
	if purity == nil || !(*purity > 0 && *purity <= 1) {
		return f, apperr.Validation("purity must be between 0 and 1")
	}
	f.Purity = *purity
	if err := checkPremium(f.PremiumPct); err != nil {
		return f, err
	}

	if f.Source == "" {
		f.Source = defaultSource
	}
	if req.Qty.Set && !req.Qty.Null {
		f.Qty = clampInt(req.Qty.Value, 1, MaxQty)
	}

	f.ShelfSection = cleanText(req.ShelfSection, maxSectionLen)
	if f.ShelfSection == "" {
		f.ShelfSection = DefaultSectionFor(f.ItemType)
	}
	if req.ShelfSlot.Set && !req.ShelfSlot.Null {
		slot := clampInt(req.ShelfSlot.Value, 0, MaxShelfSlot)
		f.ShelfSlot = &slot
	}

	accent := cleanText(req.Accent.Value, maxAccentLen)
	if accent == "" {
		accent = DefaultAccentFor(f.Metal)
	}
	f.Accent = &accent
	return f, nil
}

// validateUpdate собирает патч из переданных полей.
func validateUpdate(req models.UpdateVaultItemRequest) (models.VaultItemPatch, error) {
	var p models.VaultItemPatch

	if req.Label.Set {
		label := cleanText(req.Label.Value, maxLabelLen)
		if label == "" {
			return p, apperr.Validation("Label required")
		}
		p.Label = &label
	}
	if req.ShelfSection.Set {
		sec := cleanText(req.ShelfSection.Value, maxSectionLen)
		if sec == "" {
			sec = models.DefaultSection
		}
		p.ShelfSection = &sec
	}
	if req.ShelfSlot.Set {
		p.SetShelfSlot = true
		if !req.ShelfSlot.Null {
			slot := clampInt(req.ShelfSlot.Value, 0, MaxShelfSlot)
			p.ShelfSlot = &slot
		}
	}
	if req.Accent.Set {
		accent := cleanText(req.Accent.Value, maxAccentLen)
		p.Accent = &accent
	}
	if req.Notes.Set {
		notes := cleanText(req.Notes.Value, maxNotesLen)
		p.Notes = &notes
	}
	if req.PremiumPct.Set {
		p.SetPremiumPct = true
		p.PremiumPct = req.PremiumPct.Ptr()
		if err := checkPremium(p.PremiumPct); err != nil {
			return p, err
		}
	}
	if req.Qty.Set {
		qty := 1
		if !req.Qty.Null {
			qty = clampInt(req.Qty.Value, 1, MaxQty)
		}
		p.Qty = &qty
	}

	if p.IsEmpty() {
		return p, apperr.Validation("Nothing to update")
	}
	return p, nil
}

func checkPremium(v *float64) error {
	if v != nil && !(*v >= 0 && *v <= MaxPremiumPct) {
		return apperr.Validation("premium_pct out of range (0-500)")
	}
	return nil
}

// DefaultSectionFor возвращает секцию полки по типу предмета.
func DefaultSectionFor(itemType string) string {
	switch strings.ToLower(itemType) {
	case models.ItemTypeCoin:
		return "Coins"
	case models.ItemTypeBullion, models.ItemTypeBar:
		return "Bullion"
	case models.ItemTypeJewelry:
		return "Jewelry"
	default:
		return models.DefaultSection
	}
}

// DefaultAccentFor возвращает цвет акцента по металлу.
func DefaultAccentFor(metal string) string {
	switch metal {
	case models.MetalGold:
		return "gold"
	case models.MetalSilver:
		return "silver"
	case models.MetalPlatinum:
		return "plat"
	default:
		return ""
	}
}

// cleanText обрезает пробелы и ограничивает длину в символах.
func cleanText(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:maxLen]))
}
