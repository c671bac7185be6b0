package client

// unseenCards flags every visible card whose last edit came from another
// user and has not been looked at here. Archived cards are off the board and
// never flagged.
func unseenCards(board Board, meID string, ledger *SeenLedger) map[string]bool {
	unseen := map[string]bool{}
	for _, list := range board.Lists {
		for _, cardID := range list.CardIDs {
			card, ok := board.Cards[cardID]
			if !ok || card.Archived {
				continue
			}
			if card.UpdatedByID == "" || card.UpdatedByID == meID {
				continue
			}
			if ledger.get(card.ID) != card.UpdatedAt {
				unseen[card.ID] = true
			}
		}
	}
	return unseen
}
