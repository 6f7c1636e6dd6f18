package model

// Quiz はホストが作成したO/Xクイズを表す。
type Quiz struct {
	QuizID     ID         `json:"quizId"`
	BirthdayID ID         `json:"birthdayId"`
	Questions  []Question `json:"questions"`
}

// Question はO/Xクイズの1問を表す。
type Question struct {
	QuestionID ID     `json:"questionId,omitempty"`
	Content    string `json:"content"`
	Answer     bool   `json:"answer"`
	Sequence   int    `json:"sequence"`
}

// NewQuiz はクイズ作成リクエストを表す。
type NewQuiz struct {
	BirthdayID ID         `json:"birthdayId"`
	Questions  []Question `json:"questions"`
}

// QuizAnswer はゲストの1問分の回答を表す。questionIdで紐付ける。
type QuizAnswer struct {
	QuestionID ID   `json:"questionId"`
	Answer     bool `json:"answer"`
}

// QuizSubmission はゲストの回答提出リクエストを表す。
type QuizSubmission struct {
	Answers []QuizAnswer `json:"answers"`
}

// QuizResult は回答提出の結果を表す。
type QuizResult struct {
	Score   int            `json:"score"`
	Ranking []RankingEntry `json:"ranking"`
}

// RankingEntry はクイズランキングの1行を表す。
type RankingEntry struct {
	Rank         int    `json:"rank"`
	GuestQuizID  ID     `json:"guestQuizId"`
	NickName     string `json:"nickName"`
	CorrectCount int    `json:"correctCount"`
	TotalCount   int    `json:"totalCount"`
}
