package model

// All lists every persisted model, in dependency order
func All() []interface{} {
	return []interface{}{
		&User{},
		&UserDevice{},
		&Conversation{},
		&ConversationMember{},
		&Message{},
		&ReadReceipt{},
		&CallSession{},
		&CallParticipant{},
	}
}
