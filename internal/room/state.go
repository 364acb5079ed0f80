package room

// RoomState состояние сканирования комнаты
type RoomState int

const (
	// Scanning начальное состояние: батчи расширяют границы
	Scanning RoomState = iota
	// Confirmed конечное состояние: границы заморожены, позиция наблюдателя репортится
	Confirmed
)

// String возвращает строковое представление состояния
func (s RoomState) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Confirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// TransitionHook вызывается один раз при переходе состояния
type TransitionHook func(from, to RoomState)

// StateMachine конечный автомат Scanning → Confirmed.
// Переход единственный и необратимый.
type StateMachine struct {
	state RoomState
	hooks []TransitionHook
}

// NewStateMachine создает автомат в состоянии Scanning
func NewStateMachine() *StateMachine {
	return &StateMachine{state: Scanning}
}

// OnConfirm регистрирует обработчик перехода в Confirmed
func (m *StateMachine) OnConfirm(h TransitionHook) {
	m.hooks = append(m.hooks, h)
}

// State текущее состояние
func (m *StateMachine) State() RoomState {
	return m.state
}

// Scanning true, пока прием точек в границы разрешен
func (m *StateMachine) Scanning() bool {
	return m.state == Scanning
}

// Confirm переводит автомат в Confirmed. Повторный вызов ничего не делает
// и возвращает false; хуки срабатывают только при реальном переходе.
func (m *StateMachine) Confirm() bool {
	if m.state == Confirmed {
		return false
	}
	from := m.state
	m.state = Confirmed
	for _, h := range m.hooks {
		h(from, Confirmed)
	}
	return true
}
