// Package rewards описывает статический каталог наград программы лояльности.
package rewards

import (
	"errors"

	"github.com/mmeshcher/khaman-storefront/internal/model"
)

// ErrRewardNotFound возвращается по неизвестному идентификатору награды.
var ErrRewardNotFound = errors.New("reward not found")

// Награды задаются системой, а не пользователем. LinkedMenuID ссылается на
// позицию меню, чьё изображение показывается для награды.
var catalog = []model.RewardDefinition{
	{ID: "chutney", Name: "Extra Chutney", Cost: 300, LinkedMenuID: 4},
	{ID: "sev_khaman", Name: "Free Sev Khaman", Cost: 1200, LinkedMenuID: 1},
}

// Catalog возвращает копию списка наград в порядке возрастания стоимости.
func Catalog() []model.RewardDefinition {
	out := make([]model.RewardDefinition, len(catalog))
	copy(out, catalog)
	return out
}

// Find возвращает награду по идентификатору.
func Find(id string) (model.RewardDefinition, error) {
	for _, r := range catalog {
		if r.ID == id {
			return r, nil
		}
	}
	return model.RewardDefinition{}, ErrRewardNotFound
}
